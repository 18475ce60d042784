package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker wrapped around a store.
type BreakerConfig struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	return c
}

// BreakerBackend fails calls fast while the wrapped store keeps failing. It
// never retries: each call either reaches the store once or is rejected.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerBackend wraps next with a circuit breaker named after the store.
func NewBreakerBackend(name Handle, next Backend, cfg BreakerConfig, logger *slog.Logger) *BreakerBackend {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        string(name),
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// a missing account or record is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrRecordNotFound)
		},
	}
	if logger != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				slog.String("store", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}
	}
	return &BreakerBackend{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state as a string.
func (b *BreakerBackend) State() string {
	return b.cb.State().String()
}

func (b *BreakerBackend) ListDirectory(ctx context.Context) ([]DirectoryRecord, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ListDirectory(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]DirectoryRecord), nil
}

func (b *BreakerBackend) FindAccount(ctx context.Context, accountID string) (Account, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.FindAccount(ctx, accountID)
	})
	if err != nil {
		return Account{}, err
	}
	return res.(Account), nil
}

func (b *BreakerBackend) PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.PatchBalance(ctx, internalRecordID, newBalance)
	})
	return err
}

func (b *BreakerBackend) AppendHistory(ctx context.Context, record TransferRecord) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.AppendHistory(ctx, record)
	})
	return err
}
