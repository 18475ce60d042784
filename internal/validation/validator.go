package validation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/congo-pay/crossbank/internal/routing"
	"github.com/congo-pay/crossbank/internal/store"
)

// Reason is the precise cause of a failed account check.
type Reason string

const (
	ReasonRoutingNotFound   Reason = "routing_not_found"
	ReasonNotFound          Reason = "not_found"
	ReasonRoutingMismatch   Reason = "routing_mismatch"
	ReasonNameMismatch      Reason = "name_mismatch"
	ReasonInactive          Reason = "inactive"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	// ReasonBalanceOverflow means crediting the amount would overflow the
	// receiver's balance.
	ReasonBalanceOverflow Reason = "balance_overflow"
	// ReasonUnavailable means the owning store could not be read. Nothing
	// was mutated.
	ReasonUnavailable Reason = "store_unavailable"
)

var (
	ErrRoutingNotFound   = errors.New("no route to account")
	ErrNotFound          = errors.New("account not found")
	ErrRoutingMismatch   = errors.New("routing code mismatch")
	ErrNameMismatch      = errors.New("account name mismatch")
	ErrInactive          = errors.New("account inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance would overflow")
	ErrUnavailable       = errors.New("store unavailable")
)

var sentinels = map[Reason]error{
	ReasonRoutingNotFound:   ErrRoutingNotFound,
	ReasonNotFound:          ErrNotFound,
	ReasonRoutingMismatch:   ErrRoutingMismatch,
	ReasonNameMismatch:      ErrNameMismatch,
	ReasonInactive:          ErrInactive,
	ReasonInsufficientFunds: ErrInsufficientFunds,
	ReasonBalanceOverflow:   ErrBalanceOverflow,
	ReasonUnavailable:       ErrUnavailable,
}

// Error is returned for every failed check. It matches the sentinel of its
// reason with errors.Is.
type Error struct {
	Reason    Reason
	AccountID string
	Store     store.Handle
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("account %s: %s", e.AccountID, sentinels[e.Reason])
	if e.Store != "" {
		msg += fmt.Sprintf(" (store %s)", e.Store)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	out := []error{sentinels[e.Reason]}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Side says whether the account is debited or credited.
type Side string

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Check describes one account to validate. RoutingCode and Name are optional
// claims. Amount must be covered by the balance on the debit side and must
// fit on top of it on the credit side.
type Check struct {
	AccountID   string
	RoutingCode string
	Name        string
	Side        Side
	Amount      int64
}

// Router is the read side of the routing cache.
type Router interface {
	Lookup(accountID string) (routing.Entry, bool)
	ResolveStore(routingCode string) (store.Handle, bool)
}

// Home is the designated store of the initiating party, used for debit-side
// accounts the routing cache does not know.
type Home struct {
	Store       store.Handle
	RoutingCode string
}

// Validator runs the read-only pre-transfer checks.
type Validator struct {
	accessor store.Accessor
	router   Router
	home     Home
}

// New builds a validator.
func New(accessor store.Accessor, router Router, home Home) *Validator {
	return &Validator{accessor: accessor, router: router, home: home}
}

// ValidateAccount checks, in order and stopping at the first failure: the
// account exists in its owning store, the claimed routing code and name match
// the routing entry, the account is active and that the balance covers the
// amount (debit) or can take it without overflowing (credit). It never writes.
func (v *Validator) ValidateAccount(ctx context.Context, c Check) (store.Account, error) {
	entry, err := v.Resolve(c)
	if err != nil {
		return store.Account{}, err
	}

	acc, err := v.accessor.FindAccount(ctx, entry.Store, c.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return store.Account{}, &Error{Reason: ReasonNotFound, AccountID: c.AccountID, Store: entry.Store}
		}
		return store.Account{}, &Error{Reason: ReasonUnavailable, AccountID: c.AccountID, Store: entry.Store, Err: err}
	}
	acc.Store = entry.Store

	fail := func(r Reason) (store.Account, error) {
		return store.Account{}, &Error{Reason: r, AccountID: c.AccountID, Store: entry.Store}
	}

	if c.RoutingCode != "" && c.RoutingCode != entry.RoutingCode {
		return fail(ReasonRoutingMismatch)
	}
	if c.Name != "" && c.Name != entry.Name {
		return fail(ReasonNameMismatch)
	}
	if acc.Status != store.StatusActive {
		return fail(ReasonInactive)
	}
	if c.Side == SideDebit && acc.Balance < c.Amount {
		return fail(ReasonInsufficientFunds)
	}
	if c.Side == SideCredit && c.Amount > 0 && acc.Balance > math.MaxInt64-c.Amount {
		return fail(ReasonBalanceOverflow)
	}
	return acc, nil
}

// Resolve finds the store that owns the checked account without reading it.
// Debits always resolve to the home store when one is configured. Otherwise
// the routing cache is consulted first, then the claimed routing code.
func (v *Validator) Resolve(c Check) (routing.Entry, error) {
	if c.Side == SideDebit && v.home.Store != "" {
		if e, ok := v.router.Lookup(c.AccountID); ok && e.Store == v.home.Store {
			return e, nil
		}
		return routing.Entry{AccountID: c.AccountID, RoutingCode: v.home.RoutingCode, Store: v.home.Store}, nil
	}
	if e, ok := v.router.Lookup(c.AccountID); ok {
		return e, nil
	}
	if c.RoutingCode != "" {
		if h, ok := v.router.ResolveStore(c.RoutingCode); ok {
			return routing.Entry{AccountID: c.AccountID, RoutingCode: c.RoutingCode, Store: h}, nil
		}
	}
	return routing.Entry{}, &Error{Reason: ReasonRoutingNotFound, AccountID: c.AccountID}
}
