package locksvc

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core"
)

const (
	keyPrefix      = "dms:lock:"
	defaultTTL     = 30 * time.Second
	retryInterval  = 25 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a keyed lock shared by every API instance using the same Redis server.
// Keys expire after ttl so that a crashed holder cannot block bookings forever.
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

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	token := uuid.New().String()
	held := make([]string, 0, len(keys))
	release := func() {
		// the caller's ctx may be done already
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(rctx, r.client, []string{held[i]}, token).Err()
		}
	}

	for _, key := range keys {
		key = keyPrefix + key
		if err := r.acquire(ctx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}

	done := false
	return func() {
		if !done {
			done = true
			release()
		}
	}, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		switch {
		case ok:
			return nil
		case err != nil && ctx.Err() == nil:
			return errors.Wrapf(err, "locking %s", key)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return lockTimeout(ctx.Err())
		}
	}
}

func lockTimeout(err error) error {
	return errors.Wrap(core.ErrUnavailable, "waiting for lock: "+err.Error())
}
