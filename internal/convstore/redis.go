package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/forgehq/sidecar/pkg/models"
)

const (
	activeSessionsKey = "sessions:active"
	defaultKeyedTTL   = 24 * time.Hour
)

// KeyedStore is the Redis-backed ConversationStore variant of §4.9: a list
// per session under conv:<sid>:msgs refreshed on every write, and a set
// tracking non-terminal sessions.
type KeyedStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewKeyedStore builds a KeyedStore. ttl <= 0 defaults to 24h.
func NewKeyedStore(client *redis.Client, ttl time.Duration) *KeyedStore {
	if ttl <= 0 {
		ttl = defaultKeyedTTL
	}
	return &KeyedStore{client: client, ttl: ttl}
}

func sessionKey(id string) string  { return "session:" + id }
func messagesKey(id string) string { return "conv:" + id + ":msgs" }

func (k *KeyedStore) CreateSession(ctx context.Context, ownerUserID, agentID string) (*models.Session, error) {
	session := &models.Session{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		AgentID:     agentID,
		CreatedAt:   time.Now(),
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	pipe := k.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, k.ttl)
	pipe.SAdd(ctx, activeSessionsKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (k *KeyedStore) PersistMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	// Ownership is stored on the session row at creation and re-read here
	// to reject a message for a session this store never created.
	if _, err := k.GetSessionUserID(ctx, msg.SessionID); err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pipe := k.client.TxPipeline()
	key := messagesKey(msg.SessionID)
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, k.ttl)
	if isComplete(msg) {
		pipe.SRem(ctx, activeSessionsKey, msg.SessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (k *KeyedStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.ConversationMessage, error) {
	var start int64
	if limit > 0 {
		start = -int64(limit)
	} else {
		start = 0
	}
	raws, err := k.client.LRange(ctx, messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationMessage, 0, len(raws))
	for _, raw := range raws {
		var m models.ConversationMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (k *KeyedStore) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	// The keyed store has no secondary index by owner; active-session ids
	// are small in practice (non-terminal conversations only), so this
	// variant scans that set and filters. A session leaves the set when its
	// completion marker is appended, so completed sessions are never
	// listed by this backend.
	ids, err := k.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, err
	}
	var out []models.Session
	for _, id := range ids {
		raw, err := k.client.Get(ctx, sessionKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var s models.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, err
		}
		if s.OwnerUserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (k *KeyedStore) DeleteSession(ctx context.Context, sessionID, userID string) error {
	ownerID, err := k.GetSessionUserID(ctx, sessionID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrForbidden
	}
	pipe := k.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.Del(ctx, messagesKey(sessionID))
	pipe.SRem(ctx, activeSessionsKey, sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

func (k *KeyedStore) GetSessionUserID(ctx context.Context, sessionID string) (string, error) {
	raw, err := k.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var s models.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return "", err
	}
	return s.OwnerUserID, nil
}

func (k *KeyedStore) GetIncompleteSessions(ctx context.Context) ([]string, error) {
	return k.client.SMembers(ctx, activeSessionsKey).Result()
}

func (k *KeyedStore) Close() error { return k.client.Close() }

// NewKeyedStoreFromURL parses a redis:// URL and builds a KeyedStore.
func NewKeyedStoreFromURL(url string, ttl time.Duration) (*KeyedStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("convstore: parse redis url: %w", err)
	}
	return NewKeyedStore(redis.NewClient(opts), ttl), nil
}
