package lock

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 30 * time.Second
	retryBackoff = 25 * time.Millisecond
	keyPrefix    = "shiftledger:lock:"
)

// Only the holder's token may delete the key; an expired lock taken over by
// another instance must survive a late unlock.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Redis is a Locker shared by every backend instance pointing at the same
// Redis. Keys expire after ttl so a crashed holder cannot wedge a terminal.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) tryLock(ctx context.Context, key string, token string) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
}

func (r *Redis) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.tryLock(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if wait > 0 && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
	}

	return func() {
		// Release must outlive a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, r.client, []string{keyPrefix + key}, token).Err(); err != nil {
			log.Printf("[lock] WARN: release %s failed: %v", key, err)
		}
	}, nil
}
