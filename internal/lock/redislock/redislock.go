// Package redislock implements lock.Locker on top of Redis so several
// instances of the service serialize mutations on the same booking.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avstrong/staytrust/internal/lock"
	"github.com/avstrong/staytrust/internal/logger"
)

const keyPrefix = "staytrust:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Config struct {
	L          *logger.Logger
	TTL        time.Duration
	MaxWait    time.Duration
	RetryDelay time.Duration
}

type Locker struct {
	client *redis.Client
	conf   Config
}

// Connect accepts either a redis:// URL or a bare host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}

		return redis.NewClient(opt), nil
	}

	//nolint:exhaustruct
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func New(client *redis.Client, conf Config) *Locker {
	if conf.TTL <= 0 {
		conf.TTL = 10 * time.Second //nolint:gomnd
	}

	if conf.RetryDelay <= 0 {
		conf.RetryDelay = 25 * time.Millisecond //nolint:gomnd
	}

	return &Locker{client: client, conf: conf}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	if l.conf.MaxWait > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, l.conf.MaxWait)
		defer cancel()
	}

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.conf.TTL).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("acquire %s: %w", key, lock.ErrTimeout)
			}

			return nil, fmt.Errorf("setnx %s: %w", redisKey, err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("acquire %s: %w", key, lock.ErrTimeout)
			}

			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		case <-time.After(l.conf.RetryDelay):
		}
	}

	return func() {
		// The caller's ctx may already be done; release must still happen.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			if l.conf.L != nil {
				l.conf.L.LogErrorf("Could not release lock %s: %v", redisKey, err.Error())
			}
		}
	}, nil
}
