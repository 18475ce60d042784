package store

import (
	"context"
	"fmt"
)

// Role describes which side of a transfer a store participates in.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
	RoleBoth     Role = "both"
)

// Definition registers a backend under a handle.
type Definition struct {
	Handle      Handle
	RoutingCode string
	Role        Role
	Backend     Backend
}

func (d Definition) receives() bool {
	return d.Role == RoleReceiver || d.Role == RoleBoth || d.Role == ""
}

// Registry is the ordered set of known stores. Registration order is priority
// order: earlier stores win routing conflicts.
type Registry struct {
	defs   []Definition
	byName map[Handle]Definition
	sender Handle
}

// NewRegistry validates the definitions and builds a registry. Exactly one
// store must carry the sender or both role.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{byName: make(map[Handle]Definition, len(defs))}
	for _, d := range defs {
		if d.Handle == "" {
			return nil, fmt.Errorf("store handle is required")
		}
		if d.Backend == nil {
			return nil, fmt.Errorf("store %s: backend is required", d.Handle)
		}
		if _, exists := r.byName[d.Handle]; exists {
			return nil, fmt.Errorf("store %s registered twice", d.Handle)
		}
		switch d.Role {
		case RoleSender, RoleBoth:
			if r.sender != "" {
				return nil, fmt.Errorf("store %s: sender already set to %s", d.Handle, r.sender)
			}
			r.sender = d.Handle
		case RoleReceiver, "":
		default:
			return nil, fmt.Errorf("store %s: unknown role %q", d.Handle, d.Role)
		}
		r.defs = append(r.defs, d)
		r.byName[d.Handle] = d
	}
	if r.sender == "" {
		return nil, fmt.Errorf("no sender store registered")
	}
	return r, nil
}

// Sender returns the designated store of the initiating party.
func (r *Registry) Sender() Handle { return r.sender }

// Receivers returns the receiver stores in priority order.
func (r *Registry) Receivers() []Handle {
	out := make([]Handle, 0, len(r.defs))
	for _, d := range r.defs {
		if d.receives() {
			out = append(out, d.Handle)
		}
	}
	return out
}

// Handles returns every registered store in priority order.
func (r *Registry) Handles() []Handle {
	out := make([]Handle, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Handle)
	}
	return out
}

// RoutingCode returns the configured routing code of a store.
func (r *Registry) RoutingCode(h Handle) (string, bool) {
	d, ok := r.byName[h]
	if !ok {
		return "", false
	}
	return d.RoutingCode, true
}

func (r *Registry) backend(h Handle) (Backend, error) {
	d, ok := r.byName[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, h)
	}
	return d.Backend, nil
}

// ListDirectory implements Accessor.
func (r *Registry) ListDirectory(ctx context.Context, h Handle) ([]DirectoryRecord, error) {
	b, err := r.backend(h)
	if err != nil {
		return nil, err
	}
	return b.ListDirectory(ctx)
}

// FindAccount implements Accessor. The returned account is stamped with the
// handle it was read from.
func (r *Registry) FindAccount(ctx context.Context, h Handle, accountID string) (Account, error) {
	b, err := r.backend(h)
	if err != nil {
		return Account{}, err
	}
	acc, err := b.FindAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	acc.Store = h
	return acc, nil
}

// PatchBalance implements Accessor.
func (r *Registry) PatchBalance(ctx context.Context, h Handle, internalRecordID string, newBalance int64) error {
	b, err := r.backend(h)
	if err != nil {
		return err
	}
	return b.PatchBalance(ctx, internalRecordID, newBalance)
}

// AppendHistory implements Accessor.
func (r *Registry) AppendHistory(ctx context.Context, h Handle, record TransferRecord) error {
	b, err := r.backend(h)
	if err != nil {
		return err
	}
	return b.AppendHistory(ctx, record)
}
