// Package redislock provides a single-holder lock on top of Redis SET NX PX.
// It keeps periodic jobs from running on more than one replica at a time.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("redislock: lock held by another process")

// Client is the subset of *redis.Client used here.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

type Locker struct {
	client Client
	prefix string
}

func New(client Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

type Lock struct {
	client Client
	key    string
	token  string
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{client: l.client, key: fullKey, token: token}, nil
}

// Release drops the lock if this holder still owns it.
func (lk *Lock) Release(ctx context.Context) error {
	err := lk.client.Eval(ctx, releaseScript, []string{lk.key}, lk.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Do runs fn while holding key. It reports false without calling fn when
// another holder has the lock.
func (l *Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context)) (bool, error) {
	lk, err := l.Acquire(ctx, key, ttl)
	if errors.Is(err, ErrNotAcquired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		_ = lk.Release(context.WithoutCancel(ctx))
	}()

	fn(ctx)
	return true, nil
}
