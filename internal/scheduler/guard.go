package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Guard keeps sync passes from overlapping. TryAcquire returns ok=false
// when another pass holds the guard; release must be called after a
// successful acquire.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalGuard serializes passes within one process.
type LocalGuard struct {
	running atomic.Bool
}

func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { g.running.Store(false) }, true, nil
}

// Deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the lock only if it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisGuard serializes passes across processes sharing one redis. The lock
// expires after ttl so a crashed holder cannot block sync forever; a live
// holder renews it every ttl/3 until release.
type RedisGuard struct {
	rdb goredis.UniversalClient
	key string
	ttl time.Duration
}

func NewRedisGuard(rdb goredis.UniversalClient, key string, ttl time.Duration) (*RedisGuard, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if key == "" {
		key = "portal-sync:lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisGuard{rdb: rdb, key: key, ttl: ttl}, nil
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (g *RedisGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := keepAlive(g.ttl/3, func(ctx context.Context) (bool, error) {
		return g.renew(ctx, token)
	})
	release := func() {
		stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.rdb, []string{g.key}, token).Err()
	}
	return release, true, nil
}

// renew reports false once the key no longer holds token.
func (g *RedisGuard) renew(ctx context.Context, token string) (bool, error) {
	n, err := renewScript.Run(ctx, g.rdb, []string{g.key}, token, g.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive calls renew every interval until the returned stop func is
// called or renew reports the lock lost. A failed call is retried on the
// next tick. stop waits for the loop to exit.
func keepAlive(interval time.Duration, renew func(ctx context.Context) (bool, error)) (stop func()) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				callCtx, callCancel := context.WithTimeout(ctx, interval)
				held, err := renew(callCtx)
				callCancel()
				if err == nil && !held {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
