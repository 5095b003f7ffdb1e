// Package scheduler provides cron-based scheduling for automated mailbox sync.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	"mailmirror/internal/config"
)

// SyncFunc is the callback invoked when a scheduled sync should run.
// It receives the source identity and performs the sync.
type SyncFunc func(ctx context.Context, source string) error

// SourceStatus represents the sync status of a scheduled source.
type SourceStatus struct {
	Source    string    `json:"source"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler manages cron-based sync scheduling. A scheduled run that fires
// while the previous run for the same source is still going is skipped, not
// queued.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID // source -> cron entry ID
	schedules map[string]string       // source -> cron expression
	running   map[string]bool         // source -> currently syncing
	lastRun   map[string]time.Time    // source -> last successful run
	lastErr   map[string]error        // source -> last error

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running sync goroutines
	started bool               // true after Start(), false after Stop()
	stopped bool               // true after Stop()
}

// New creates a new Scheduler with the given sync callback.
func New(syncFunc SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		))),
		syncFunc:  syncFunc,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddSource schedules sync for a source using the given cron expression.
// Returns an error if the cron expression is invalid.
func (s *Scheduler) AddSource(source, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing schedule if present
	if entryID, exists := s.jobs[source]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, source)
		delete(s.schedules, source)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		if s.stopped || s.running[source] {
			s.mu.Unlock()
			return
		}
		s.running[source] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runSync(source)
	})
	if err != nil {
		return eris.Wrapf(err, "invalid cron expression %q", cronExpr)
	}

	s.jobs[source] = entryID
	s.schedules[source] = cronExpr
	s.logger.Info("scheduled sync",
		"source", source,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// AddSourcesFromConfig adds all enabled accounts from the config.
// Returns the number of sources scheduled and any errors encountered.
func (s *Scheduler) AddSourcesFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0

	for _, acc := range cfg.ScheduledAccounts() {
		if err := s.AddSource(acc.Source, acc.Schedule); err != nil {
			errs = append(errs, eris.Wrap(err, acc.Source))
		} else {
			scheduled++
		}
	}

	return scheduled, errs
}

// RemoveSource removes the schedule for a source.
func (s *Scheduler) RemoveSource(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[source]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, source)
		delete(s.schedules, source)
		s.logger.Info("removed schedule", "source", source)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running sync jobs, and waits
// for them to finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel() // signal running syncs to stop

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runSync executes sync for a source (called by cron or TriggerSync).
// The caller must have already called wg.Add(1) and set running[source] = true.
func (s *Scheduler) runSync(source string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[source] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sync", "source", source)
	start := time.Now()

	err := s.syncFunc(s.ctx, source)

	s.mu.Lock()
	if err != nil {
		s.lastErr[source] = err
		s.logger.Error("scheduled sync failed",
			"source", source,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[source] = time.Now()
		s.lastErr[source] = nil
		s.logger.Info("scheduled sync completed",
			"source", source,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled returns true if the source has been added to the scheduler.
func (s *Scheduler) IsScheduled(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[source]
	return exists
}

// TriggerSync manually triggers a sync for a source (outside of schedule).
// Returns an error if a sync is already running, the source is not scheduled,
// or the scheduler has been stopped.
func (s *Scheduler) TriggerSync(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return eris.New("scheduler is stopped")
	}

	if _, exists := s.jobs[source]; !exists {
		return eris.Errorf("source %s is not scheduled", source)
	}
	if s.running[source] {
		return eris.Errorf("sync already running for %s", source)
	}

	s.running[source] = true
	s.wg.Add(1)
	go s.runSync(source)
	return nil
}

// Status returns the current status of all scheduled sources.
func (s *Scheduler) Status() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []SourceStatus
	for source, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := SourceStatus{
			Source:   source,
			Running:  s.running[source],
			LastRun:  s.lastRun[source],
			NextRun:  entry.Next,
			Schedule: s.schedules[source],
		}
		if err := s.lastErr[source]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return eris.Wrap(err, "invalid cron expression")
	}
	return nil
}
