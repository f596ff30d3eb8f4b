package BlackListRepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dataroom:revoked:"

// BlackListRepo remembers revoked session tokens until they would have
// expired anyway. Only a digest of each token is stored.
type BlackListRepo struct {
	Client *redis.Client
}

func NewBlackListRepo(client *redis.Client) *BlackListRepo {
	return &BlackListRepo{
		Client: client,
	}
}

func (r *BlackListRepo) buildKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Revoke is a no-op for a token that has already expired.
func (r *BlackListRepo) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt).Round(time.Second)
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, r.buildKey(token), "1", ttl).Err()
}

func (r *BlackListRepo) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.Client.Exists(ctx, r.buildKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
