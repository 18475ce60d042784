package core

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/crossbank/internal/config"
	"github.com/congo-pay/crossbank/internal/logging"
	"github.com/congo-pay/crossbank/internal/saga"
	"github.com/congo-pay/crossbank/internal/store"
)

func registry(t *testing.T) (*store.Registry, *store.MemoryBackend, *store.MemoryBackend) {
	t.Helper()
	home := store.NewMemoryBackend()
	bank := store.NewMemoryBackend()
	home.Seed(store.SeedAccount{AccountID: "alice", RoutingCode: "001", Balance: 1000})
	bank.Seed(store.SeedAccount{AccountID: "bob", RoutingCode: "002"})
	reg, err := store.NewRegistry(
		store.Definition{Handle: "home", RoutingCode: "001", Role: store.RoleSender, Backend: home},
		store.Definition{Handle: "bank", RoutingCode: "002", Backend: bank},
	)
	require.NoError(t, err)
	return reg, home, bank
}

func TestCoreTransfersEndToEnd(t *testing.T) {
	reg, home, bank := registry(t)
	c := New(config.Config{}, reg, nil, logging.Discard())
	c.Routing.Refresh(context.Background())

	out := c.Orchestrator.Transfer(context.Background(), saga.Request{
		SenderAccountID:   "alice",
		SenderRoutingCode: "001",
		ReceiverAccountID: "bob",
		Amount:            250,
	})
	require.NoError(t, out.Err())

	b, _ := home.Balance("alice")
	assert.Equal(t, int64(750), b)
	b, _ = bank.Balance("bob")
	assert.Equal(t, int64(250), b)
	assert.Len(t, bank.History(), 1)
}

func TestCoreUsesRedisLockWhenEnabled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	reg, _, _ := registry(t)
	cfg := config.Config{LockAccounts: true, LockTTL: time.Minute, LockWait: 0}
	c := New(cfg, reg, client, logging.Discard())
	c.Routing.Refresh(context.Background())

	require.NoError(t, mr.Set("lock:account:bank:bob", "someone"))
	out := c.Orchestrator.Transfer(context.Background(), saga.Request{SenderAccountID: "alice", ReceiverAccountID: "bob", Amount: 1})
	assert.Equal(t, saga.ReasonAccountBusy, out.Reason)
}
