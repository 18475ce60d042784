package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/crossbank/internal/store"
)

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

var (
	// ErrHeld is returned when a key stays locked past the wait timeout.
	ErrHeld = errors.New("lock already held")
	// ErrNotHeld is returned on unlock when the key expired or changed owner.
	ErrNotHeld = errors.New("lock not held")
)

// AccountKey is the lock key of an account in a store.
func AccountKey(h store.Handle, accountID string) string {
	return fmt.Sprintf("lock:account:%s:%s", h, accountID)
}

// Redis takes short-lived exclusive locks with SET NX and a per-acquisition
// owner token. Only the owner can release.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// NewRedis builds a locker. ttl bounds how long a crashed holder can block
// others; wait bounds how long Lock polls for a busy key.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration, logger *slog.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, wait: wait, logger: logger}
}

// Lock acquires every key or none. Keys are taken in sorted order so two
// callers locking the same pair cannot deadlock. The returned func releases
// them all.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(context.Context) error, error) {
	keys = normalise(keys)
	token := uuid.NewString()

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := r.acquire(ctx, key, token); err != nil {
			r.release(context.WithoutCancel(ctx), held, token)
			return nil, err
		}
		held = append(held, key)
	}

	return func(ctx context.Context) error {
		return r.release(ctx, held, token)
	}, nil
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(r.wait)
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrHeld, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10+rand.Intn(40)) * time.Millisecond):
		}
	}
}

func (r *Redis) release(ctx context.Context, keys []string, token string) error {
	var errs []error
	for i := len(keys) - 1; i >= 0; i-- {
		res, err := r.client.Eval(ctx, unlockScript, []string{keys[i]}, token).Result()
		if err == nil && res == int64(0) {
			err = fmt.Errorf("%w: %s", ErrNotHeld, keys[i])
		}
		if err != nil {
			r.logger.Warn("account lock release failed", slog.String("key", keys[i]), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalise(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
