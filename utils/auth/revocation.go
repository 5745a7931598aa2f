package auth

import (
	"context"
	"time"
)

// RevokedKeyPrefix namespaces revoked token ids in Redis
const RevokedKeyPrefix = "auth:revoked:"

// KeyStore is the subset of the Redis cache used for revocation
type KeyStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// RevocationList tracks logged-out token ids until they expire
type RevocationList struct {
	store KeyStore
}

func NewRevocationList(store KeyStore) *RevocationList {
	return &RevocationList{store: store}
}

// RevokeToken marks jti revoked until expiresAt
func (r *RevocationList) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.store.SetJSON(ctx, RevokedKeyPrefix+jti, true, ttl)
}

// IsTokenRevoked checks if a token is in the revocation list
func (r *RevocationList) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return r.store.Exists(ctx, RevokedKeyPrefix+jti)
}
