package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Op identifies a backend operation for fault injection.
type Op string

const (
	OpListDirectory Op = "list_directory"
	OpFindAccount   Op = "find_account"
	OpPatchBalance  Op = "patch_balance"
	OpAppendHistory Op = "append_history"
)

// Fault decides whether the n-th call (1-based) of an operation fails.
type Fault func(call int) error

// FailAlways fails every call with err.
func FailAlways(err error) Fault {
	return func(int) error { return err }
}

// FailFrom lets the first n-1 calls through and fails every call after that.
func FailFrom(n int, err error) Fault {
	return func(call int) error {
		if call >= n {
			return err
		}
		return nil
	}
}

type memoryAccount struct {
	recordID    string
	accountID   string
	routingCode string
	name        string
	balance     int64
	status      AccountStatus
}

// MemoryBackend is a concurrency-safe in-memory store useful for unit tests
// and local development.
type MemoryBackend struct {
	mu        sync.RWMutex
	accounts  map[string]*memoryAccount // by record id
	byAccount map[string]string         // account id -> record id
	order     []string
	history   []TransferRecord
	faults    map[Op]Fault
	calls     map[Op]int
}

// NewMemoryBackend creates an empty in-memory store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		accounts:  make(map[string]*memoryAccount),
		byAccount: make(map[string]string),
		faults:    make(map[Op]Fault),
		calls:     make(map[Op]int),
	}
}

// SeedAccount describes an account to preload.
type SeedAccount struct {
	AccountID   string
	RoutingCode string
	Name        string
	Balance     int64
	Status      AccountStatus
	// Unlisted keeps the account out of the directory collection.
	Unlisted bool
}

// Seed inserts or replaces an account and returns its internal record id.
func (m *MemoryBackend) Seed(acc SeedAccount) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := acc.Status
	if status == "" {
		status = StatusActive
	}
	recID, exists := m.byAccount[acc.AccountID]
	if !exists {
		recID = uuid.NewString()
		m.byAccount[acc.AccountID] = recID
	}
	rec := &memoryAccount{
		recordID:    recID,
		accountID:   acc.AccountID,
		routingCode: acc.RoutingCode,
		name:        acc.Name,
		balance:     acc.Balance,
		status:      status,
	}
	m.accounts[recID] = rec
	if !exists && !acc.Unlisted {
		m.order = append(m.order, recID)
	}
	return recID
}

// SetFault installs a fault for op, replacing any previous one. A nil fault
// clears it.
func (m *MemoryBackend) SetFault(op Op, f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = f
}

// Calls reports how many times op has been invoked.
func (m *MemoryBackend) Calls(op Op) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Balance returns the stored balance of an account.
func (m *MemoryBackend) Balance(accountID string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recID, ok := m.byAccount[accountID]
	if !ok {
		return 0, false
	}
	return m.accounts[recID].balance, true
}

// History returns a copy of the appended transfer records.
func (m *MemoryBackend) History() []TransferRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransferRecord, len(m.history))
	copy(out, m.history)
	return out
}

// fault must be called with the write lock held.
func (m *MemoryBackend) fault(op Op) error {
	m.calls[op]++
	if f, ok := m.faults[op]; ok {
		return f(m.calls[op])
	}
	return nil
}

func (m *MemoryBackend) ListDirectory(ctx context.Context) ([]DirectoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpListDirectory); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]DirectoryRecord, 0, len(m.order))
	for _, recID := range m.order {
		acc := m.accounts[recID]
		out = append(out, DirectoryRecord{AccountID: acc.accountID, RoutingCode: acc.routingCode, Name: acc.name})
	}
	return out, nil
}

func (m *MemoryBackend) FindAccount(ctx context.Context, accountID string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpFindAccount); err != nil {
		return Account{}, err
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	recID, ok := m.byAccount[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	acc := m.accounts[recID]
	return Account{
		InternalRecordID: acc.recordID,
		AccountID:        acc.accountID,
		Balance:          acc.balance,
		Status:           acc.status,
	}, nil
}

func (m *MemoryBackend) PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpPatchBalance); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	acc, ok := m.accounts[internalRecordID]
	if !ok {
		return ErrRecordNotFound
	}
	acc.balance = newBalance
	return nil
}

func (m *MemoryBackend) AppendHistory(ctx context.Context, record TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpAppendHistory); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.history = append(m.history, record)
	return nil
}
