package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "keyforge:token:blacklist:"

// TokenBlacklist stores revoked admin JWTs in Redis until they expire
// on their own.
type TokenBlacklist struct {
	rdb *redis.Client
}

func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

// Revoke marks a token as logged out for the remainder of its lifetime.
func (b *TokenBlacklist) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx := context.Background()
	return b.rdb.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
}

// IsRevoked reports whether a token has been revoked. Redis being down
// fails open so admins are not locked out by a cache outage.
func (b *TokenBlacklist) IsRevoked(token string) bool {
	ctx := context.Background()
	n, err := b.rdb.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false
	}
	return n > 0
}
