package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/crossbank/internal/logging"
	"github.com/congo-pay/crossbank/internal/store"
)

func newRegistry(t *testing.T) (*store.Registry, map[store.Handle]*store.MemoryBackend) {
	t.Helper()
	backends := map[store.Handle]*store.MemoryBackend{
		"home":   store.NewMemoryBackend(),
		"bank-b": store.NewMemoryBackend(),
		"bank-c": store.NewMemoryBackend(),
	}
	reg, err := store.NewRegistry(
		store.Definition{Handle: "home", Role: store.RoleSender, Backend: backends["home"]},
		store.Definition{Handle: "bank-b", Backend: backends["bank-b"]},
		store.Definition{Handle: "bank-c", Backend: backends["bank-c"]},
	)
	require.NoError(t, err)
	return reg, backends
}

func record() store.TransferRecord {
	return store.TransferRecord{
		ID:                "tx-1",
		SenderAccountID:   "alice",
		ReceiverAccountID: "bob",
		Amount:            500,
		Timestamp:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRecordWritesEveryStore(t *testing.T) {
	reg, backends := newRegistry(t)
	rec := NewRecorder(reg, reg, logging.Discard())

	report := rec.Record(context.Background(), record())
	assert.False(t, report.Partial())
	require.Len(t, report.Results, 2)
	assert.Equal(t, store.Handle("bank-b"), report.Results[0].Store)
	assert.Equal(t, store.Handle("bank-c"), report.Results[1].Store)

	for _, h := range []store.Handle{"bank-b", "bank-c"} {
		require.Len(t, backends[h].History(), 1, "store %s", h)
		assert.Equal(t, record(), backends[h].History()[0])
	}
	assert.Empty(t, backends["home"].History(), "sender-only store is not a receiver")
}

func TestRecordToleratesFailures(t *testing.T) {
	reg, backends := newRegistry(t)
	backends["bank-c"].SetFault(store.OpAppendHistory, store.FailAlways(errors.New("disk full")))
	rec := NewRecorder(reg, reg, logging.Discard())

	report := rec.Record(context.Background(), record())
	assert.True(t, report.Partial())
	assert.Equal(t, []store.Handle{"bank-c"}, report.Failed())
	assert.Len(t, backends["bank-b"].History(), 1)
	assert.Empty(t, backends["bank-c"].History())
}

func TestRecordAllFailing(t *testing.T) {
	reg, backends := newRegistry(t)
	for _, b := range backends {
		b.SetFault(store.OpAppendHistory, store.FailAlways(errors.New("down")))
	}
	rec := NewRecorder(reg, reg, logging.Discard())

	report := rec.Record(context.Background(), record())
	assert.Len(t, report.Failed(), 2)
}
