package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
)

const resetTokenBytes = 32

var _ ports.ResetTokenStore = (*ResetTokenStore)(nil)

// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens.
var ErrResetTokenInvalid error = apperrors.ValidationField("token", "reset link is invalid or has expired")

// ResetTokenStore keeps single-use password reset tokens with a TTL.
type ResetTokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewResetTokenStore creates a Redis-backed reset token store. keyPrefix defaults to
// DefaultKeyPrefix.
func NewResetTokenStore(client redis.UniversalClient, keyPrefix ...string) *ResetTokenStore {
	prefix := DefaultKeyPrefix
	if len(keyPrefix) > 0 && keyPrefix[0] != "" {
		prefix = keyPrefix[0]
	}
	return &ResetTokenStore{client: client, prefix: prefix + "reset:"}
}

// Issue creates a random token bound to identityID.
func (s *ResetTokenStore) Issue(ctx context.Context, identityID string, ttl time.Duration) (string, error) {
	if identityID == "" {
		return "", errors.New("identity id is required")
	}
	if ttl <= 0 {
		return "", errors.New("reset token ttl must be positive")
	}

	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(b)
	if err := s.client.Set(ctx, s.prefix+token, identityID, ttl).Err(); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return token, nil
}

// Redeem atomically reads and deletes a token.
func (s *ResetTokenStore) Redeem(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrResetTokenInvalid
	}
	id, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetTokenInvalid
		}
		return "", fmt.Errorf("redeem reset token: %w", err)
	}
	return id, nil
}
