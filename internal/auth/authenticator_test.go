package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "email": "user@example.com"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticatorTrustModeDecodesWithoutSignatureCheck(t *testing.T) {
	a := NewAuthenticator(ModeTrust, "", "sub")
	token := signedToken(t, "any-secret-works-untouched", "user-1")

	user, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("expected user-1, got %q", user.ID)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("expected email claim, got %q", user.Email)
	}
}

func TestAuthenticatorVerifyModeRejectsTamperedSignature(t *testing.T) {
	a := NewAuthenticator(ModeVerify, "correct-secret", "sub")
	token := signedToken(t, "wrong-secret", "user-1")

	if _, err := a.Authenticate(token); err != ErrSignatureInvalid {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAuthenticatorVerifyModeAcceptsValidSignature(t *testing.T) {
	a := NewAuthenticator(ModeVerify, "correct-secret", "sub")
	token := signedToken(t, "correct-secret", "user-2")

	user, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != "user-2" {
		t.Fatalf("expected user-2, got %q", user.ID)
	}
}

func TestAuthenticatorRejectsMissingSubject(t *testing.T) {
	a := NewAuthenticator(ModeTrust, "", "sub")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "no-sub@example.com"})
	signed, err := token.SignedString([]byte("x"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := a.Authenticate(signed); err != ErrMissingSubject {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestAuthenticatorRejectsEmptyToken(t *testing.T) {
	a := NewAuthenticator(ModeTrust, "", "sub")
	if _, err := a.Authenticate(""); err != ErrNoToken {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestAdminAuthenticatorConstantTimeCompare(t *testing.T) {
	a := NewAdminAuthenticator("secret-admin-key")
	if !a.Authenticate("secret-admin-key") {
		t.Fatal("expected matching key to authenticate")
	}
	if a.Authenticate("wrong-key") {
		t.Fatal("expected non-matching key to fail")
	}
}

func TestAdminAuthenticatorFailsClosedWhenUnset(t *testing.T) {
	a := NewAdminAuthenticator("")
	if a.Authenticate("anything") {
		t.Fatal("expected empty configured key to always reject")
	}
	if a.Authenticate("") {
		t.Fatal("expected empty token to be rejected even with empty key")
	}
}
