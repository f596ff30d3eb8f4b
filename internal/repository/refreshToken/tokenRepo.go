package refreshToken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dataroom:refresh:"

// consumeScript deletes the stored digest only when it matches, so a refresh
// token can be exchanged once even under concurrent requests.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RefreshTokenRepo keeps one refresh token per user, stored as a digest.
type RefreshTokenRepo struct {
	Client *redis.Client
}

func New(client *redis.Client) *RefreshTokenRepo {
	return &RefreshTokenRepo{Client: client}
}

func (r *RefreshTokenRepo) buildKey(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Save replaces any refresh token the user already had.
func (r *RefreshTokenRepo) Save(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	return r.Client.Set(ctx, r.buildKey(userID), digest(token), ttl).Err()
}

// Consume reports whether token is the user's current refresh token and, if
// so, invalidates it.
func (r *RefreshTokenRepo) Consume(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	n, err := consumeScript.Run(ctx, r.Client, []string{r.buildKey(userID)}, digest(token)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RefreshTokenRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.Client.Del(ctx, r.buildKey(userID)).Err()
}
