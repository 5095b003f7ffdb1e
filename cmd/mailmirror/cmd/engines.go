package cmd

import (
	"context"
	"fmt"
	gosync "sync"

	"mailmirror/internal/progress"
	"mailmirror/internal/remote"
	"mailmirror/internal/store"
	"mailmirror/internal/sync"
)

// newEngine builds a sync engine for one source: token, client, rate limiter.
func newEngine(ctx context.Context, s *store.Store, source string) (*sync.Engine, error) {
	if cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote base_url not configured; set [remote] base_url in %s", "config.toml")
	}

	tokenSource, err := loadTokenSource(ctx, source)
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.Remote.BaseURL, tokenSource,
		remote.WithLogger(logger),
		remote.WithRateLimiter(remote.NewRateLimiter(float64(cfg.Sync.RateLimitQPS))),
	)

	opts := sync.DefaultOptions()
	opts.BatchSize = cfg.Sync.BatchSize
	opts.Concurrency = cfg.Sync.Concurrency

	return sync.New(client, s, opts).WithLogger(logger), nil
}

// engineSet lazily builds and caches one engine per source. It backs the API
// server and the scheduler, which address sources by name and must share
// engines so per-source mutual exclusion holds across both.
type engineSet struct {
	store *store.Store

	mu      gosync.Mutex
	engines map[string]*sync.Engine
}

func newEngineSet(s *store.Store) *engineSet {
	return &engineSet{store: s, engines: make(map[string]*sync.Engine)}
}

func (es *engineSet) get(ctx context.Context, source string) (*sync.Engine, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if e, ok := es.engines[source]; ok {
		return e, nil
	}
	e, err := newEngine(ctx, es.store, source)
	if err != nil {
		return nil, err
	}
	es.engines[source] = e
	return e, nil
}

func (es *engineSet) Sync(ctx context.Context, source string, limit int, rep progress.Reporter) (*sync.Result, error) {
	e, err := es.get(ctx, source)
	if err != nil {
		return nil, err
	}
	return e.Sync(ctx, source, limit, rep)
}

func (es *engineSet) SyncMore(ctx context.Context, source string, limit int, rep progress.Reporter) (*sync.Result, error) {
	e, err := es.get(ctx, source)
	if err != nil {
		return nil, err
	}
	return e.SyncMore(ctx, source, limit, rep)
}

// Status and Clear touch only the local store, so no remote credentials are
// needed and unknown sources still get an answer.
func (es *engineSet) Status(source string) (*sync.Status, error) {
	return sync.New(nil, es.store, nil).Status(source)
}

func (es *engineSet) Clear(source string) error {
	es.mu.Lock()
	e, ok := es.engines[source]
	es.mu.Unlock()
	if ok {
		return e.Clear(source)
	}
	return sync.New(nil, es.store, nil).Clear(source)
}
