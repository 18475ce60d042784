package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/crossbank/internal/logging"
	"github.com/congo-pay/crossbank/internal/store"
)

type fixture struct {
	reg   *store.Registry
	bankB *store.MemoryBackend
	bankC *store.MemoryBackend
	cache *Cache
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	home := store.NewMemoryBackend()
	bankB := store.NewMemoryBackend()
	bankC := store.NewMemoryBackend()
	reg, err := store.NewRegistry(
		store.Definition{Handle: "home", RoutingCode: "001", Role: store.RoleSender, Backend: home},
		store.Definition{Handle: "bank-b", RoutingCode: "002", Backend: bankB},
		store.Definition{Handle: "bank-c", RoutingCode: "003", Backend: bankC},
	)
	require.NoError(t, err)
	return fixture{reg: reg, bankB: bankB, bankC: bankC, cache: New(reg, reg, logging.Discard())}
}

func TestRefreshMergesAllReceiverStores(t *testing.T) {
	f := newFixture(t)
	f.bankB.Seed(store.SeedAccount{AccountID: "b-1", RoutingCode: "002", Name: "Bob"})
	f.bankC.Seed(store.SeedAccount{AccountID: "c-1", RoutingCode: "003", Name: "Cleo"})

	report := f.cache.Refresh(context.Background())
	assert.Equal(t, 2, report.Entries)
	assert.Empty(t, report.Failures)
	assert.False(t, f.cache.RefreshedAt().IsZero())

	e, ok := f.cache.Lookup("c-1")
	require.True(t, ok)
	assert.Equal(t, Entry{AccountID: "c-1", RoutingCode: "003", Name: "Cleo", Store: "bank-c"}, e)

	_, ok = f.cache.Lookup("nobody")
	assert.False(t, ok)
}

func TestRefreshSkipsFailingStore(t *testing.T) {
	f := newFixture(t)
	f.bankB.Seed(store.SeedAccount{AccountID: "b-1", RoutingCode: "002"})
	f.bankC.Seed(store.SeedAccount{AccountID: "c-1", RoutingCode: "003"})
	down := errors.New("dial tcp: connection refused")
	f.bankC.SetFault(store.OpListDirectory, store.FailAlways(down))

	report := f.cache.Refresh(context.Background())
	assert.Equal(t, 1, report.Entries)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, store.Handle("bank-c"), report.Failures[0].Store)
	assert.ErrorIs(t, report.Failures[0].Err, down)

	_, ok := f.cache.Lookup("b-1")
	assert.True(t, ok)
}

func TestRefreshResolvesDuplicatesByPriority(t *testing.T) {
	f := newFixture(t)
	f.bankB.Seed(store.SeedAccount{AccountID: "shared", RoutingCode: "002", Name: "From B"})
	f.bankC.Seed(store.SeedAccount{AccountID: "shared", RoutingCode: "003", Name: "From C"})

	for i := 0; i < 20; i++ {
		report := f.cache.Refresh(context.Background())
		require.Len(t, report.Conflicts, 1)
		assert.Equal(t, Conflict{AccountID: "shared", Kept: "bank-b", Dropped: "bank-c"}, report.Conflicts[0])

		e, ok := f.cache.Lookup("shared")
		require.True(t, ok)
		assert.Equal(t, store.Handle("bank-b"), e.Store)
	}
}

func TestLookupIsStableBetweenRefreshes(t *testing.T) {
	f := newFixture(t)
	f.bankB.Seed(store.SeedAccount{AccountID: "b-1", RoutingCode: "002", Name: "Bob"})
	f.cache.Refresh(context.Background())

	first, _ := f.cache.Lookup("b-1")
	f.bankB.Seed(store.SeedAccount{AccountID: "b-1", RoutingCode: "002", Name: "Robert"})
	second, _ := f.cache.Lookup("b-1")
	assert.Equal(t, first, second)

	f.cache.Refresh(context.Background())
	third, _ := f.cache.Lookup("b-1")
	assert.Equal(t, "Robert", third.Name)
}

func TestResolveStore(t *testing.T) {
	f := newFixture(t)

	h, ok := f.cache.ResolveStore("003")
	require.True(t, ok, "configured codes resolve before the first refresh")
	assert.Equal(t, store.Handle("bank-c"), h)

	_, ok = f.cache.ResolveStore("001")
	assert.False(t, ok, "the sender store is not a receiver")

	f.bankC.Seed(store.SeedAccount{AccountID: "c-1", RoutingCode: "003-branch"})
	f.cache.Refresh(context.Background())
	h, ok = f.cache.ResolveStore("003-branch")
	require.True(t, ok)
	assert.Equal(t, store.Handle("bank-c"), h)
}

func TestEntriesSorted(t *testing.T) {
	f := newFixture(t)
	f.bankC.Seed(store.SeedAccount{AccountID: "z", RoutingCode: "003"})
	f.bankB.Seed(store.SeedAccount{AccountID: "a", RoutingCode: "002"})
	f.cache.Refresh(context.Background())

	entries := f.cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].AccountID)
	assert.Equal(t, "z", entries[1].AccountID)
}
