package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/crossbank/internal/history"
	"github.com/congo-pay/crossbank/internal/lock"
	"github.com/congo-pay/crossbank/internal/notification"
	"github.com/congo-pay/crossbank/internal/routing"
	"github.com/congo-pay/crossbank/internal/store"
	"github.com/congo-pay/crossbank/internal/validation"
)

// AccountValidator resolves and checks one side of a transfer.
// *validation.Validator implements it.
type AccountValidator interface {
	Resolve(c validation.Check) (routing.Entry, error)
	ValidateAccount(ctx context.Context, c validation.Check) (store.Account, error)
}

// Recorder fans a completed transfer out to the receiver stores.
type Recorder interface {
	Record(ctx context.Context, rec store.TransferRecord) history.Report
}

// Locker serialises transfers touching the same accounts. The returned func
// releases every key.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(context.Context) error, error)
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLocker holds per-account locks from validation until the saga ends.
// Without it concurrent transfers on one account can both pass validation
// against the same balance and overwrite each other's patch.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithNotifier sets where completion and compensation alerts go.
func WithNotifier(n notification.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type stepFunc func(ctx context.Context, r *run) State

// Orchestrator runs transfers as a saga: validate both accounts, debit the
// sender, credit the receiver and reverse the debit if the credit fails. No
// step is retried.
type Orchestrator struct {
	accessor  store.Accessor
	validator AccountValidator
	recorder  Recorder
	notifier  notification.Notifier
	locker    Locker
	logger    *slog.Logger
	now       func() time.Time
	steps     map[State]stepFunc
}

// New builds an orchestrator.
func New(accessor store.Accessor, validator AccountValidator, recorder Recorder, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		accessor:  accessor,
		validator: validator,
		recorder:  recorder,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.steps = map[State]stepFunc{
		StateValidating:        o.validate,
		StateDebiting:          o.debit,
		StateCrediting:         o.credit,
		StateCompensatingDebit: o.compensate,
	}
	return o
}

// run is the mutable state of one saga execution.
type run struct {
	id       string
	req      Request
	sender   store.Account
	receiver store.Account
	unlock   func(context.Context) error

	reason Reason
	party  Party
	err    error

	senderBalance   int64
	receiverBalance int64
}

func (r *run) abort(reason Reason, party Party, err error) State {
	r.reason, r.party, r.err = reason, party, err
	return StateAborted
}

// Transfer executes req to a terminal state. Caller cancellation is honoured
// only while validating; once the debit starts the saga runs to the end.
func (o *Orchestrator) Transfer(ctx context.Context, req Request) Outcome {
	r := &run{id: req.TransferID, req: req}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	logger := o.logger.With(slog.String("transfer_id", r.id))

	var trail []State
	state := StateValidating
	for !state.Terminal() {
		if state == StateDebiting {
			ctx = context.WithoutCancel(ctx)
		}
		trail = append(trail, state)
		logger.Debug("transfer step", slog.String("state", string(state)))
		state = o.steps[state](ctx, r)
	}
	trail = append(trail, state)

	if r.unlock != nil {
		if err := r.unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("releasing account locks failed", slog.Any("error", err))
		}
	}

	out := Outcome{
		TransferID:      r.id,
		State:           state,
		Reason:          r.reason,
		Party:           r.party,
		Trail:           trail,
		SenderBalance:   r.senderBalance,
		ReceiverBalance: r.receiverBalance,
	}

	switch state {
	case StateCompleted:
		out.Status = StatusCompleted
		o.complete(ctx, r, &out, logger)
	case StateCompensationFailed:
		out.Status = StatusCompensationFailed
		out.err = r.err
		o.alert(ctx, r, logger)
	default:
		out.Status = StatusAborted
		out.err = fmt.Errorf("%w: %s: %w", ErrAborted, r.reason, r.err)
		logger.Warn("transfer aborted",
			slog.String("state", string(state)),
			slog.String("reason", string(r.reason)),
			slog.String("party", string(r.party)),
			slog.Any("error", r.err),
		)
	}
	return out
}

func (o *Orchestrator) checks(req Request) (validation.Check, validation.Check) {
	sender := validation.Check{
		AccountID:   req.SenderAccountID,
		RoutingCode: req.SenderRoutingCode,
		Side:        validation.SideDebit,
		Amount:      req.Amount,
	}
	receiver := validation.Check{
		AccountID:   req.ReceiverAccountID,
		RoutingCode: req.ReceiverRoutingCode,
		Name:        req.ReceiverName,
		Side:        validation.SideCredit,
		Amount:      req.Amount,
	}
	return sender, receiver
}

func (o *Orchestrator) validate(ctx context.Context, r *run) State {
	if err := r.req.Validate(); err != nil {
		return r.abort(ReasonInvalidRequest, "", err)
	}
	senderCheck, receiverCheck := o.checks(r.req)

	if o.locker != nil {
		if next, ok := o.lock(ctx, r, senderCheck, receiverCheck); !ok {
			return next
		}
	}

	sender, err := o.validator.ValidateAccount(ctx, senderCheck)
	if err != nil {
		return r.abort(validationReason(err), PartySender, err)
	}
	r.senderBalance = sender.Balance

	receiver, err := o.validator.ValidateAccount(ctx, receiverCheck)
	if err != nil {
		return r.abort(validationReason(err), PartyReceiver, err)
	}
	r.receiverBalance = receiver.Balance

	if sender.Store == receiver.Store && sender.InternalRecordID == receiver.InternalRecordID {
		return r.abort(ReasonInvalidRequest, PartyReceiver, errors.New("sender and receiver are the same account"))
	}

	r.sender, r.receiver = sender, receiver
	return StateDebiting
}

func (o *Orchestrator) lock(ctx context.Context, r *run, checks ...validation.Check) (State, bool) {
	parties := []Party{PartySender, PartyReceiver}
	keys := make([]string, 0, len(checks))
	for i, c := range checks {
		entry, err := o.validator.Resolve(c)
		if err != nil {
			return r.abort(validationReason(err), parties[i], err), false
		}
		keys = append(keys, lock.AccountKey(entry.Store, c.AccountID))
	}
	unlock, err := o.locker.Lock(ctx, keys...)
	if err != nil {
		return r.abort(ReasonAccountBusy, "", err), false
	}
	r.unlock = unlock
	return "", true
}

func (o *Orchestrator) debit(ctx context.Context, r *run) State {
	debited := r.sender.Balance - r.req.Amount
	if err := o.accessor.PatchBalance(ctx, r.sender.Store, r.sender.InternalRecordID, debited); err != nil {
		return r.abort(ReasonDebitFailed, PartySender, err)
	}
	r.senderBalance = debited
	return StateCrediting
}

func (o *Orchestrator) credit(ctx context.Context, r *run) State {
	credited := r.receiver.Balance + r.req.Amount
	if err := o.accessor.PatchBalance(ctx, r.receiver.Store, r.receiver.InternalRecordID, credited); err != nil {
		r.reason, r.party, r.err = ReasonCreditFailed, PartyReceiver, err
		return StateCompensatingDebit
	}
	r.receiverBalance = credited
	return StateCompleted
}

// compensate re-applies the amount to the balance the debit wrote. It does not
// re-read the account.
func (o *Orchestrator) compensate(ctx context.Context, r *run) State {
	restored := r.senderBalance + r.req.Amount
	if err := o.accessor.PatchBalance(ctx, r.sender.Store, r.sender.InternalRecordID, restored); err != nil {
		r.err = fmt.Errorf("%w: credit to %s failed (%w), reversing debit on %s failed: %w",
			ErrCompensationFailed, r.receiver.Store, r.err, r.sender.Store, err)
		return StateCompensationFailed
	}
	r.senderBalance = restored
	return StateCompensationSucceeded
}

func (o *Orchestrator) complete(ctx context.Context, r *run, out *Outcome, logger *slog.Logger) {
	rec := store.TransferRecord{
		ID:                r.id,
		SenderAccountID:   r.sender.AccountID,
		ReceiverAccountID: r.receiver.AccountID,
		Amount:            r.req.Amount,
		Timestamp:         o.now(),
	}
	out.Record = &rec
	if o.recorder != nil {
		report := o.recorder.Record(ctx, rec)
		out.FanOut = &report
	}

	logger.Info("transfer completed",
		slog.String("sender_store", string(r.sender.Store)),
		slog.String("receiver_store", string(r.receiver.Store)),
		slog.Int64("amount", r.req.Amount),
	)
	if o.notifier == nil {
		return
	}
	err := o.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferCompleted,
		Destination: string(r.receiver.Store),
		Body:        fmt.Sprintf("account %s received %d from %s", r.receiver.AccountID, r.req.Amount, r.sender.AccountID),
		Attrs:       map[string]string{"transfer_id": r.id},
	})
	if err != nil {
		logger.Warn("completion notice failed", slog.Any("error", err))
	}
}

func (o *Orchestrator) alert(ctx context.Context, r *run, logger *slog.Logger) {
	logger.Error("transfer compensation failed, funds in limbo",
		slog.String("sender_store", string(r.sender.Store)),
		slog.String("sender_account_id", r.sender.AccountID),
		slog.Int64("sender_balance", r.senderBalance),
		slog.Int64("amount", r.req.Amount),
		slog.Any("error", r.err),
	)
	if o.notifier == nil {
		return
	}
	err := o.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindCompensationFailed,
		Destination: "operator",
		Body:        fmt.Sprintf("account %s on %s debited %d without a matching credit", r.sender.AccountID, r.sender.Store, r.req.Amount),
		Attrs: map[string]string{
			"transfer_id":         r.id,
			"receiver_account_id": r.receiver.AccountID,
			"receiver_store":      string(r.receiver.Store),
		},
	})
	if err != nil {
		logger.Error("operator alert failed", slog.Any("error", err))
	}
}

func validationReason(err error) Reason {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return Reason(verr.Reason)
	}
	return ReasonStoreUnavailable
}
