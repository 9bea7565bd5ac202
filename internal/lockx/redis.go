package lockx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotAcquired = errors.New("lockx: lock not acquired")

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another node is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock shared by every gateway instance. The TTL
// bounds how long a crashed holder can block an attempt.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	log    *zap.Logger
}

type Options struct {
	Prefix string
	TTL    time.Duration
	Retry  time.Duration // poll interval while waiting
	Logger *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, opts Options) *RedisLocker {
	l := &RedisLocker{client: client, prefix: opts.Prefix, ttl: opts.TTL, retry: opts.Retry, log: opts.Logger}
	if l.prefix == "" {
		l.prefix = "testprep:lock:"
	}
	if l.ttl <= 0 {
		l.ttl = 30 * time.Second
	}
	if l.retry <= 0 {
		l.retry = 25 * time.Millisecond
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l
}

// NewClient connects and pings, the way the rest of the stack expects a
// ready client.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock blocks until key is acquired or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lockx: acquire %s: %w", key, err)
		}
		if ok {
			return l.unlocker(full, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlocker(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// release even when the request context is already gone
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			l.log.Warn("redis unlock failed", zap.String("key", key), zap.Error(err))
			return
		}
		if n == 0 {
			l.log.Warn("redis lock expired before unlock", zap.String("key", key))
		}
	}
}
