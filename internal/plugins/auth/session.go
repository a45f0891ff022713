package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parlor/internal/apperror"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// SessionStore persists Principals behind opaque tokens. The same token
// travels in the HTTP cookie and the websocket handshake.
type SessionStore interface {
	Create(ctx context.Context, principal Principal) (token string, err error)
	Lookup(ctx context.Context, token string) (*Principal, error)
	Destroy(ctx context.Context, token string) error
}

// redisSessionStore keeps one JSON Principal per key with a fixed TTL.
type redisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisSessionStore creates a session store on the given client.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{redis: rdb, ttl: ttl}
}

// Create stores the principal under a fresh random token.
func (s *redisSessionStore) Create(ctx context.Context, principal Principal) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	data, err := json.Marshal(principal)
	if err != nil {
		return "", fmt.Errorf("marshaling principal: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", apperror.NewUnavailable(fmt.Errorf("storing session in Redis: %w", err))
	}
	return token, nil
}

// Lookup returns the principal for token. Unknown, expired, malformed or
// corrupt entries all yield ErrSessionInvalid; only Redis failures are
// reported as unavailable.
func (s *redisSessionStore) Lookup(ctx context.Context, token string) (*Principal, error) {
	if !validSessionToken(token) {
		return nil, ErrSessionInvalid
	}

	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, apperror.NewUnavailable(fmt.Errorf("reading session from Redis: %w", err))
	}

	var principal Principal
	if err := json.Unmarshal(data, &principal); err != nil || principal.UserID == "" {
		return nil, ErrSessionInvalid
	}
	return &principal, nil
}

// Destroy removes the session. Destroying a missing session is not an error.
func (s *redisSessionStore) Destroy(ctx context.Context, token string) error {
	if !validSessionToken(token) {
		return nil
	}
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return apperror.NewUnavailable(fmt.Errorf("deleting session from Redis: %w", err))
	}
	return nil
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validSessionToken rejects anything that generateSessionToken could not
// have produced, sparing Redis a round trip for garbage cookies.
func validSessionToken(token string) bool {
	if len(token) != sessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// PrincipalCodec converts between users and the principal kept in the
// session. Only the user id is serialized; everything else is re-read
// from the store on every request.
type PrincipalCodec struct {
	users UserRepository
}

// NewPrincipalCodec creates a codec that resolves ids through users.
func NewPrincipalCodec(users UserRepository) *PrincipalCodec {
	return &PrincipalCodec{users: users}
}

// Serialize returns the session identity of user: its internal id.
func (c *PrincipalCodec) Serialize(user *User) string {
	return user.ID
}

// Deserialize loads the user for a serialized id. A record that no longer
// exists yields ErrSessionInvalid so callers degrade to "no user".
func (c *PrincipalCodec) Deserialize(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrSessionInvalid
	}
	user, err := c.users.FindByID(ctx, id)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, ErrSessionInvalid
		}
		return nil, apperror.NewUnavailable(fmt.Errorf("loading session user: %w", err))
	}
	return user, nil
}
