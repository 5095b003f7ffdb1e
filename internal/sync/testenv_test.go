package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mailmirror/internal/remote"
	"mailmirror/internal/store"
)

const testSource = "acct@example.com"

type TestEnv struct {
	Store   *store.Store
	Mock    *remote.Mock
	Engine  *Engine
	TmpDir  string
	Context context.Context
}

func newTestEnv(t *testing.T, opt ...*Options) *TestEnv {
	t.Helper()

	if len(opt) > 1 {
		t.Fatalf("newTestEnv: at most one *Options allowed, got %d", len(opt))
	}

	tmpDir, err := os.MkdirTemp("", "mailmirror-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	dbPath := filepath.Join(tmpDir, "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	var o *Options
	if len(opt) > 0 {
		o = opt[0]
	}

	mock := remote.NewMock()
	return &TestEnv{
		Store:   st,
		Mock:    mock,
		Engine:  New(mock, st, o),
		TmpDir:  tmpDir,
		Context: context.Background(),
	}
}

// SetOptions replaces the Engine with one configured by the given modifier function.
func (e *TestEnv) SetOptions(t *testing.T, mod func(*Options)) {
	t.Helper()
	opts := DefaultOptions()
	mod(opts)
	e.Engine = New(e.Mock, e.Store, opts)
}

// seedMessages adds messages to the mock mailbox without change-log entries,
// with dates spaced one minute apart starting at baseDate.
func seedMessages(env *TestEnv, ids ...string) {
	for i, id := range ids {
		env.Mock.AddMessage(remote.TestMessage(
			id,
			"sender@example.com",
			"recipient@example.com",
			"Subject "+id,
			baseDate+int64(i)*60_000,
		))
	}
}

const baseDate = int64(1704110400000) // 2024-01-01T12:00:00Z in millis

// runSync runs a sync and fails the test on error.
func runSync(t *testing.T, env *TestEnv, limit int) *Result {
	t.Helper()
	res, err := env.Engine.Sync(env.Context, testSource, limit, nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	return res
}

// runSyncMore continues the backfill and fails the test on error.
func runSyncMore(t *testing.T, env *TestEnv, limit int) *Result {
	t.Helper()
	res, err := env.Engine.SyncMore(env.Context, testSource, limit, nil)
	if err != nil {
		t.Fatalf("sync more: %v", err)
	}
	return res
}

// assertResult checks Result counters. Use -1 to skip a check.
func assertResult(t *testing.T, res *Result, added, deleted, errors int64) {
	t.Helper()
	if added >= 0 && res.Added != added {
		t.Errorf("expected %d added, got %d", added, res.Added)
	}
	if deleted >= 0 && res.Deleted != deleted {
		t.Errorf("expected %d deleted, got %d", deleted, res.Deleted)
	}
	if errors >= 0 && res.Errors != errors {
		t.Errorf("expected %d errors, got %d", errors, res.Errors)
	}
}

// assertItemCount checks the stored item count for the test source.
func assertItemCount(t *testing.T, st *store.Store, want int64) {
	t.Helper()
	count, err := st.CountItems(testSource)
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	if count != want {
		t.Errorf("expected %d items in db, got %d", want, count)
	}
}

// mustStatus fetches the sync status and fails on error.
func mustStatus(t *testing.T, env *TestEnv) *Status {
	t.Helper()
	status, err := env.Engine.Status(testSource)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	return status
}

// mustState fetches the raw sync state row, failing the test on error. Returns
// nil when no state has been persisted.
func mustState(t *testing.T, env *TestEnv) *store.SyncState {
	t.Helper()
	state, err := env.Store.GetSyncState(testSource)
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}
	return state
}

// storedIDs returns the source item IDs currently in the store as a set.
func storedIDs(t *testing.T, env *TestEnv) map[string]bool {
	t.Helper()
	ids, err := env.Store.ListItemIDs(testSource)
	if err != nil {
		t.Fatalf("ListItemIDs: %v", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
