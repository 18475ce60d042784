package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	mem.Seed(SeedAccount{AccountID: "acc-1", Balance: 10})
	unreachable := errors.New("connection refused")
	mem.SetFault(OpFindAccount, FailAlways(unreachable))

	b := NewBreakerBackend("bank-b", mem, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		_, err := b.FindAccount(ctx, "acc-1")
		require.ErrorIs(t, err, unreachable)
	}

	_, err := b.FindAccount(ctx, "acc-1")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, mem.Calls(OpFindAccount), "open breaker must not reach the store")
	assert.Equal(t, "open", b.State())
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	b := NewBreakerBackend("bank-b", mem, BreakerConfig{ConsecutiveFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.FindAccount(ctx, "nobody")
		require.ErrorIs(t, err, ErrAccountNotFound)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerPassesResultsThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	recID := mem.Seed(SeedAccount{AccountID: "acc-1", RoutingCode: "002", Name: "Ann", Balance: 10})
	b := NewBreakerBackend("bank-b", mem, BreakerConfig{}, nil)

	dir, err := b.ListDirectory(ctx)
	require.NoError(t, err)
	assert.Len(t, dir, 1)

	require.NoError(t, b.PatchBalance(ctx, recID, 25))
	acc, err := b.FindAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), acc.Balance)

	require.NoError(t, b.AppendHistory(ctx, TransferRecord{ID: "t"}))
	assert.Len(t, mem.History(), 1)
}
