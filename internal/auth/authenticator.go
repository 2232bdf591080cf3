package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgehq/sidecar/pkg/models"
)

// Mode selects how an Authenticator treats an inbound bearer token.
type Mode string

const (
	// ModeTrust decodes the JWT payload without checking its signature.
	// Intended for deployments where a trusted gateway in front of the
	// sidecar has already verified the token.
	ModeTrust Mode = "trust"
	// ModeVerify checks an HMAC-SHA256 signature before trusting any claim.
	ModeVerify Mode = "verify"
)

var (
	ErrNoToken          = errors.New("no bearer token")
	ErrMalformedToken   = errors.New("malformed token")
	ErrMissingSubject   = errors.New("token missing subject claim")
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrAuthDisabled is returned by JWTService when it was built without a secret.
	ErrAuthDisabled = errors.New("auth: jwt service has no secret configured")
	// ErrInvalidToken is returned by JWTService.Validate for any
	// unparseable, unsigned, or subject-less token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Authenticator turns a request's bearer token into a models.User, per the
// mode it was built with. Trust and verify mode share everything except
// whether the signature is checked.
type Authenticator struct {
	mode      Mode
	claimPath string
	jwt       *JWTService
}

// NewAuthenticator builds an Authenticator. claimPath names the claim that
// identifies the user (defaulting to "sub"); secret is required, and used,
// only in ModeVerify.
func NewAuthenticator(mode Mode, secret, claimPath string) *Authenticator {
	if claimPath == "" {
		claimPath = "sub"
	}
	a := &Authenticator{mode: mode, claimPath: claimPath}
	if mode == ModeVerify {
		a.jwt = NewJWTService(secret, 0)
	}
	return a
}

// Authenticate extracts the bearer token's claims into a User. In ModeTrust
// the payload segment is base64-decoded and parsed as JSON without any
// signature check. In ModeVerify the signature must validate against the
// configured secret using HS256, or authentication fails.
func (a *Authenticator) Authenticate(bearerToken string) (*models.User, error) {
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return nil, ErrNoToken
	}

	switch a.mode {
	case ModeVerify:
		return a.authenticateVerify(token)
	default:
		return a.authenticateTrust(token)
	}
}

func (a *Authenticator) authenticateTrust(token string) (*models.User, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return userFromClaims(claims, a.claimPath)
}

func (a *Authenticator) authenticateVerify(token string) (*models.User, error) {
	if a.jwt == nil || len(a.jwt.secret) == 0 {
		return nil, ErrAuthDisabled
	}
	var claims jwt.MapClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwt.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrSignatureInvalid
	}
	return userFromClaims(map[string]any(claims), a.claimPath)
}

func userFromClaims(claims map[string]any, claimPath string) (*models.User, error) {
	subject, _ := claims[claimPath].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrMissingSubject
	}
	user := &models.User{ID: subject, Claims: claims}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}
	return user, nil
}

// AdminAuthenticator checks a bearer token against a single configured admin
// key using a constant-time comparison. An empty configured key fails
// closed: every request is rejected rather than silently allowed through.
type AdminAuthenticator struct {
	key string
}

// NewAdminAuthenticator builds an AdminAuthenticator for the given key.
func NewAdminAuthenticator(key string) *AdminAuthenticator {
	return &AdminAuthenticator{key: strings.TrimSpace(key)}
}

// Authenticate reports whether bearerToken matches the configured admin key.
func (a *AdminAuthenticator) Authenticate(bearerToken string) bool {
	if a == nil || a.key == "" {
		return false
	}
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.key)) == 1
}
