package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/congo-pay/crossbank/internal/store"
)

// Topology lists the stores that receive a copy of every transfer record.
type Topology interface {
	Receivers() []store.Handle
}

// Result is the outcome of appending to one store.
type Result struct {
	Store store.Handle `json:"store"`
	Err   error        `json:"-"`
}

// OK reports whether the append succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Report collects per-store results in store priority order.
type Report struct {
	Results []Result
}

// Failed returns the stores that did not record the transfer.
func (r Report) Failed() []store.Handle {
	var out []store.Handle
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Store)
		}
	}
	return out
}

// Partial reports whether at least one store failed.
func (r Report) Partial() bool { return len(r.Failed()) > 0 }

// Recorder appends a completed transfer to every receiver store's history.
type Recorder struct {
	accessor store.Accessor
	topology Topology
	logger   *slog.Logger
}

// NewRecorder builds a recorder.
func NewRecorder(accessor store.Accessor, topology Topology, logger *slog.Logger) *Recorder {
	return &Recorder{accessor: accessor, topology: topology, logger: logger}
}

// Record writes rec to all stores concurrently and waits for every attempt.
// Failures are logged and reported; they never fail the transfer, which is
// already committed when this runs.
func (r *Recorder) Record(ctx context.Context, rec store.TransferRecord) Report {
	stores := r.topology.Receivers()
	results := make([]Result, len(stores))

	var wg sync.WaitGroup
	for i, h := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = Result{Store: h, Err: r.accessor.AppendHistory(ctx, h, rec)}
		}()
	}
	wg.Wait()

	for _, res := range results {
		if res.Err != nil {
			r.logger.Warn("transfer history append failed",
				slog.String("transfer_id", rec.ID),
				slog.String("store", string(res.Store)),
				slog.Any("error", res.Err),
			)
		}
	}
	return Report{Results: results}
}
