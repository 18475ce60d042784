package routing

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/crossbank/internal/store"
)

// Entry maps an external account identifier to the store that owns it.
type Entry struct {
	AccountID   string       `json:"account_id"`
	RoutingCode string       `json:"routing_code"`
	Name        string       `json:"name"`
	Store       store.Handle `json:"store"`
}

// Topology lists the stores the cache scans. *store.Registry implements it.
type Topology interface {
	Receivers() []store.Handle
	RoutingCode(h store.Handle) (string, bool)
}

// StoreFailure records a store that could not be read during a refresh.
type StoreFailure struct {
	Store store.Handle
	Err   error
}

// Conflict records an account id published by more than one store. Kept is
// the higher-priority store.
type Conflict struct {
	AccountID string
	Kept      store.Handle
	Dropped   store.Handle
}

// RefreshReport summarises one refresh cycle.
type RefreshReport struct {
	Entries     int
	Failures    []StoreFailure
	Conflicts   []Conflict
	RefreshedAt time.Time
}

type snapshot struct {
	entries     map[string]Entry
	codes       map[string]store.Handle
	refreshedAt time.Time
}

// Cache is an in-memory routing table rebuilt from every receiver store's
// directory. Reads go to an immutable snapshot that Refresh swaps atomically.
type Cache struct {
	accessor store.Accessor
	topology Topology
	logger   *slog.Logger
	snap     atomic.Pointer[snapshot]
}

// New builds an empty cache. Configured routing codes resolve immediately;
// account lookups need a Refresh.
func New(accessor store.Accessor, topology Topology, logger *slog.Logger) *Cache {
	c := &Cache{accessor: accessor, topology: topology, logger: logger}
	c.snap.Store(&snapshot{
		entries: map[string]Entry{},
		codes:   c.configuredCodes(),
	})
	return c
}

func (c *Cache) configuredCodes() map[string]store.Handle {
	codes := make(map[string]store.Handle)
	for _, h := range c.topology.Receivers() {
		if code, ok := c.topology.RoutingCode(h); ok && code != "" {
			if _, taken := codes[code]; !taken {
				codes[code] = h
			}
		}
	}
	return codes
}

// Refresh queries every receiver store concurrently and replaces the snapshot.
// A store that fails is skipped; the refresh itself never fails. Merging is
// done in store priority order so duplicates resolve the same way every time.
func (c *Cache) Refresh(ctx context.Context) RefreshReport {
	stores := c.topology.Receivers()
	results := make([][]store.DirectoryRecord, len(stores))
	errs := make([]error, len(stores))

	var g errgroup.Group
	for i, h := range stores {
		g.Go(func() error {
			results[i], errs[i] = c.accessor.ListDirectory(ctx, h)
			return nil
		})
	}
	_ = g.Wait()

	next := &snapshot{
		entries:     make(map[string]Entry),
		codes:       c.configuredCodes(),
		refreshedAt: time.Now().UTC(),
	}
	report := RefreshReport{RefreshedAt: next.refreshedAt}

	for i, h := range stores {
		if errs[i] != nil {
			c.logger.Warn("routing refresh skipped store",
				slog.String("store", string(h)),
				slog.Any("error", errs[i]),
			)
			report.Failures = append(report.Failures, StoreFailure{Store: h, Err: errs[i]})
			continue
		}
		for _, rec := range results[i] {
			if rec.AccountID == "" {
				continue
			}
			if prev, dup := next.entries[rec.AccountID]; dup {
				if prev.Store != h {
					report.Conflicts = append(report.Conflicts, Conflict{AccountID: rec.AccountID, Kept: prev.Store, Dropped: h})
				}
				continue
			}
			next.entries[rec.AccountID] = Entry{
				AccountID:   rec.AccountID,
				RoutingCode: rec.RoutingCode,
				Name:        rec.Name,
				Store:       h,
			}
			if rec.RoutingCode != "" {
				if _, taken := next.codes[rec.RoutingCode]; !taken {
					next.codes[rec.RoutingCode] = h
				}
			}
		}
	}

	for _, cf := range report.Conflicts {
		c.logger.Warn("routing conflict resolved by store priority",
			slog.String("account_id", cf.AccountID),
			slog.String("kept", string(cf.Kept)),
			slog.String("dropped", string(cf.Dropped)),
		)
	}

	report.Entries = len(next.entries)
	c.snap.Store(next)
	c.logger.Info("routing cache refreshed",
		slog.Int("entries", report.Entries),
		slog.Int("failed_stores", len(report.Failures)),
	)
	return report
}

// Lookup returns the cached entry for an account id.
func (c *Cache) Lookup(accountID string) (Entry, bool) {
	e, ok := c.snap.Load().entries[accountID]
	return e, ok
}

// ResolveStore maps a routing code to the store that owns it.
func (c *Cache) ResolveStore(routingCode string) (store.Handle, bool) {
	h, ok := c.snap.Load().codes[routingCode]
	return h, ok
}

// Entries returns the current table sorted by account id.
func (c *Cache) Entries() []Entry {
	snap := c.snap.Load()
	out := make([]Entry, 0, len(snap.entries))
	for _, e := range snap.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// RefreshedAt is the time of the last completed refresh, zero before the
// first one.
func (c *Cache) RefreshedAt() time.Time {
	return c.snap.Load().refreshedAt
}

// Run refreshes on every tick until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}
