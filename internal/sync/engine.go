// Package sync implements the remote-to-local synchronization engine: full
// sync, incremental change-feed sync, resumable backfill, and data clearing.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mailmirror/internal/progress"
	"mailmirror/internal/remote"
	"mailmirror/internal/store"
)

// ErrSyncInProgress is returned when a sync is requested for a source that is
// already being synced. Concurrent runs for one source would interleave
// writes and corrupt the sync state, so the second caller is rejected rather
// than queued.
var ErrSyncInProgress = errors.New("sync already in progress for this source")

// Options configures engine behavior.
type Options struct {
	// BatchSize is the number of messages fetched and stored per batch.
	BatchSize int

	// Concurrency is the maximum parallel fetches within a batch. Bounded to
	// respect remote rate limits and connection caps.
	Concurrency int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		BatchSize:   25,
		Concurrency: 8,
	}
}

// Result summarizes a completed sync operation.
type Result struct {
	Added   int64
	Deleted int64
	Errors  int64
}

// Status describes the replica's view of one source.
type Status struct {
	Synced          bool
	TotalItems      int64
	LastSyncAt      time.Time
	HasMoreBackfill bool
}

// Engine orchestrates synchronization between the remote message store and
// the local replica. The store handle and remote client are injected, so
// tests run against doubles and multiple engines can coexist.
type Engine struct {
	client remote.API
	store  *store.Store
	logger *slog.Logger
	opts   *Options

	mu     sync.Mutex
	active map[string]bool
}

// New creates an Engine.
func New(client remote.API, st *store.Store, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Engine{
		client: client,
		store:  st,
		logger: slog.Default(),
		opts:   opts,
		active: make(map[string]bool),
	}
}

// WithLogger sets the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// acquire marks a source as syncing. Returns ErrSyncInProgress if it already is.
func (e *Engine) acquire(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[source] {
		return ErrSyncInProgress
	}
	e.active[source] = true
	return nil
}

func (e *Engine) release(source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, source)
}

// Sync synchronizes a source. When a change cursor from a previous run
// exists, the incremental path is taken; if the remote reports that cursor as
// expired, the cursor is discarded and a full sync runs instead. Any other
// incremental failure propagates unchanged. Without a cursor, a full sync
// runs, fetching at most limit messages (0 means unbounded).
func (e *Engine) Sync(ctx context.Context, source string, limit int, rep progress.Reporter) (*Result, error) {
	if rep == nil {
		rep = progress.Null{}
	}
	if err := e.acquire(source); err != nil {
		return nil, err
	}
	defer e.release(source)

	state, err := e.store.GetSyncState(source)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	if state != nil && state.ChangeCursor != "" {
		res, err := e.incremental(ctx, source, state, rep)
		var expired *remote.CursorExpiredError
		if err == nil || !errors.As(err, &expired) {
			return res, err
		}

		// The one recoverable failure: the feed no longer retains our
		// cursor. Discard it and resynchronize from scratch.
		e.logger.Warn("change cursor expired, falling back to full sync",
			"source", source, "cursor", state.ChangeCursor)
		rep.Report(progress.Event{
			Phase:   progress.PhaseInfo,
			Message: "change cursor expired; running full sync",
		})
	}

	return e.full(ctx, source, limit, rep)
}

// SyncMore continues a prior full sync's historical backfill. A source with
// no remaining backfill is a completed no-op, not an error.
func (e *Engine) SyncMore(ctx context.Context, source string, limit int, rep progress.Reporter) (*Result, error) {
	if rep == nil {
		rep = progress.Null{}
	}
	if err := e.acquire(source); err != nil {
		return nil, err
	}
	defer e.release(source)

	return e.backfill(ctx, source, limit, rep)
}

// Status reports the replica's sync status for a source.
func (e *Engine) Status(source string) (*Status, error) {
	state, err := e.store.GetSyncState(source)
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	if state == nil {
		return &Status{}, nil
	}
	return &Status{
		Synced:          true,
		TotalItems:      state.TotalItems,
		LastSyncAt:      state.LastSyncAt,
		HasMoreBackfill: state.BackfillCursor != "",
	}, nil
}

// Clear removes all items for a source together with its sync state. The
// deletion is atomic, so a partial clear can never leave the replica
// ambiguous about whether the source was synced.
func (e *Engine) Clear(source string) error {
	if err := e.acquire(source); err != nil {
		return err
	}
	defer e.release(source)

	return e.store.ClearSource(source)
}

// done emits the final progress event for a run.
func done(rep progress.Reporter, res *Result, message string) {
	rep.Report(progress.Event{
		Phase:   progress.PhaseDone,
		Current: res.Added,
		Message: message,
	})
}
