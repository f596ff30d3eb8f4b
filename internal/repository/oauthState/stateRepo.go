package oauthState

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateRepo stores single-use OAuth state values.
type StateRepo struct {
	Client *redis.Client
}

func New(client *redis.Client) *StateRepo {
	return &StateRepo{Client: client}
}

func (r *StateRepo) buildKey(state string) string {
	return fmt.Sprintf("oauth_state:%s", state)
}

func (r *StateRepo) Save(ctx context.Context, state string, ttl time.Duration) error {
	return r.Client.Set(ctx, r.buildKey(state), "1", ttl).Err()
}

// Consume deletes the state and reports whether it existed.
func (r *StateRepo) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	_, err := r.Client.GetDel(ctx, r.buildKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
