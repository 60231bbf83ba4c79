// Package lock guards a cart against concurrent checkout submissions.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

// Acquire takes the lock for key. It returns a release func when the lock
// was taken and ok=false when someone else holds it.
func (r *Redis) Acquire(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{keyPrefix + key}, token).Err(); err != nil {
			return fmt.Errorf("release checkout lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Ping checks that redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
