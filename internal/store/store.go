package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrAccountNotFound is returned when a store holds no account for the
	// requested identifier.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnknownStore indicates a handle that is not registered.
	ErrUnknownStore = errors.New("unknown store")

	// ErrRecordNotFound is returned by PatchBalance when the internal record
	// key no longer exists in the store.
	ErrRecordNotFound = errors.New("record not found")
)

// Handle names a store. The core treats it as opaque.
type Handle string

// AccountStatus is the lifecycle status reported by a store.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
	StatusUnknown  AccountStatus = "unknown"
)

// ParseStatus maps a raw status string to an AccountStatus. Anything that is
// not recognised becomes StatusUnknown.
func ParseStatus(raw string) AccountStatus {
	switch AccountStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive
	case StatusInactive:
		return StatusInactive
	default:
		return StatusUnknown
	}
}

// DirectoryRecord is the lightweight routing entry a store publishes for each
// account it owns.
type DirectoryRecord struct {
	AccountID   string `json:"accountId" bson:"accountId"`
	RoutingCode string `json:"routingCode" bson:"routingCode"`
	Name        string `json:"name" bson:"name"`
}

// Account is a ledger record as seen by the orchestrator. Balance is in minor
// currency units.
type Account struct {
	InternalRecordID string
	AccountID        string
	Balance          int64
	Status           AccountStatus
	Store            Handle
}

// TransferRecord is the append-only history entry written after a completed
// transfer.
type TransferRecord struct {
	ID                string    `json:"transferId" bson:"transferId"`
	SenderAccountID   string    `json:"senderAccountId" bson:"senderAccountId"`
	ReceiverAccountID string    `json:"receiverAccountId" bson:"receiverAccountId"`
	Amount            int64     `json:"amount" bson:"amount"`
	Timestamp         time.Time `json:"timestamp" bson:"timestamp"`
}

// Backend is the accessor for a single store.
type Backend interface {
	ListDirectory(ctx context.Context) ([]DirectoryRecord, error)
	FindAccount(ctx context.Context, accountID string) (Account, error)
	// PatchBalance updates only the balance field of the record.
	PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error
	AppendHistory(ctx context.Context, record TransferRecord) error
}

// Accessor addresses any registered store by handle. Registry is the
// production implementation.
type Accessor interface {
	ListDirectory(ctx context.Context, h Handle) ([]DirectoryRecord, error)
	FindAccount(ctx context.Context, h Handle, accountID string) (Account, error)
	PatchBalance(ctx context.Context, h Handle, internalRecordID string, newBalance int64) error
	AppendHistory(ctx context.Context, h Handle, record TransferRecord) error
}
