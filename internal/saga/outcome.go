package saga

import (
	"errors"

	"github.com/congo-pay/crossbank/internal/history"
	"github.com/congo-pay/crossbank/internal/store"
)

// State is a step of the transfer state machine.
type State string

const (
	StateValidating            State = "validating"
	StateDebiting              State = "debiting"
	StateCrediting             State = "crediting"
	StateCompensatingDebit     State = "compensating_debit"
	StateCompleted             State = "completed"
	StateAborted               State = "aborted"
	StateCompensationSucceeded State = "compensation_succeeded"
	StateCompensationFailed    State = "compensation_failed"
)

// Terminal reports whether the saga stops in s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAborted, StateCompensationSucceeded, StateCompensationFailed:
		return true
	}
	return false
}

// Status is what the caller sees. A reversed credit failure is reported as
// aborted: no funds moved.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusAborted            Status = "aborted"
	StatusCompensationFailed Status = "compensation_failed"
)

// Reason explains an abort. Validation reasons are carried through unchanged.
type Reason string

const (
	ReasonInvalidRequest    Reason = "invalid_request"
	ReasonRoutingNotFound   Reason = "routing_not_found"
	ReasonNotFound          Reason = "not_found"
	ReasonRoutingMismatch   Reason = "routing_mismatch"
	ReasonNameMismatch      Reason = "name_mismatch"
	ReasonInactive          Reason = "inactive"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonBalanceOverflow   Reason = "balance_overflow"
	ReasonStoreUnavailable  Reason = "store_unavailable"
	ReasonAccountBusy       Reason = "account_busy"
	ReasonDebitFailed       Reason = "debit_failed"
	ReasonCreditFailed      Reason = "credit_failed"
)

// Party names the side of the transfer a failure is attributed to.
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

var (
	// ErrAborted wraps every clean abort. Nothing was moved.
	ErrAborted = errors.New("transfer aborted")
	// ErrCompensationFailed means the sender was debited, the receiver was not
	// credited and the reversal failed. It needs an operator.
	ErrCompensationFailed = errors.New("transfer compensation failed")
)

// Outcome is the typed result of one transfer.
type Outcome struct {
	TransferID string
	Status     Status
	State      State
	Reason     Reason
	Party      Party
	// Trail lists every state the saga passed through, terminal state last.
	Trail []State
	// Record and FanOut are set only on completion.
	Record *store.TransferRecord
	FanOut *history.Report
	// Balances are the last values the saga wrote or read. Zero when the
	// account was never read.
	SenderBalance   int64
	ReceiverBalance int64

	err error
}

// Err returns nil for a completed transfer, an error wrapping ErrAborted for a
// clean abort, and one wrapping ErrCompensationFailed when funds are in limbo.
func (o Outcome) Err() error { return o.err }

// Completed reports whether the funds moved.
func (o Outcome) Completed() bool { return o.Status == StatusCompleted }
