package session

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const denylistPrefix = "opsuite:revoked:"

// Denylist records revoked access-token IDs until their natural expiry so a
// logout invalidates the token before its embedded expiry passes. A nil
// Denylist is valid and never reports revocation.
type Denylist struct {
	client *redis.Client
}

// NewDenylist wraps a Redis client. Returns nil for a nil client so callers
// can wire the denylist optionally.
func NewDenylist(client *redis.Client) *Denylist {
	if client == nil {
		return nil
	}
	return &Denylist{client: client}
}

// Revoke marks a token ID as revoked until the given time. Entries expire
// with the token, so the set stays bounded by the access TTL.
func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if d == nil || jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		// Already past its expiry; nothing left to revoke.
		return nil
	}
	return d.client.Set(ctx, denylistPrefix+jti, 1, ttl).Err()
}

// IsRevoked reports whether a token ID has been revoked.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if d == nil || jti == "" {
		return false, nil
	}
	_, err := d.client.Get(ctx, denylistPrefix+jti).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
