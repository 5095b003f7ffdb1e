package sync

import (
	"testing"

	"mailmirror/internal/remote"
	"mailmirror/internal/store"
)

func mustContact(t *testing.T, env *TestEnv, email string) *store.Contact {
	t.Helper()
	contact, err := env.Store.GetContact(email)
	if err != nil {
		t.Fatalf("GetContact(%s): %v", email, err)
	}
	if contact == nil {
		t.Fatalf("expected contact %s", email)
	}
	return contact
}

func TestContactExtraction(t *testing.T) {
	env := newTestEnv(t)
	env.Mock.AddMessage(remote.TestMessage("msg1",
		`"Ann Archer" <ann@example.com>`, "bob@example.com", "Hello", baseDate))

	runSync(t, env, 0)

	ann := mustContact(t, env, "ann@example.com")
	if ann.Name != "Ann Archer" {
		t.Errorf("expected name 'Ann Archer', got %q", ann.Name)
	}
	if ann.LastSeen != baseDate {
		t.Errorf("expected last seen %d, got %d", baseDate, ann.LastSeen)
	}
	if ann.FirstSeen == 0 {
		t.Error("expected first seen to be set")
	}

	// Recipients become contacts too.
	bob := mustContact(t, env, "bob@example.com")
	if bob.Name != "" {
		t.Errorf("expected empty name for bare address, got %q", bob.Name)
	}
}

func TestContactLastSeenOnlyAdvances(t *testing.T) {
	env := newTestEnv(t)
	env.Mock.AddMessage(remote.TestMessage("msg1",
		"ann@example.com", "bob@example.com", "Newer", baseDate+600_000))
	runSync(t, env, 0)

	// An older message arriving later must not pull last seen backwards.
	env.Mock.RecordAdd(remote.TestMessage("msg2",
		"ann@example.com", "bob@example.com", "Older", baseDate))
	runSync(t, env, 0)

	ann := mustContact(t, env, "ann@example.com")
	if ann.LastSeen != baseDate+600_000 {
		t.Errorf("last seen regressed: expected %d, got %d", baseDate+600_000, ann.LastSeen)
	}

	// A genuinely newer message advances it.
	env.Mock.RecordAdd(remote.TestMessage("msg3",
		"ann@example.com", "bob@example.com", "Newest", baseDate+1_200_000))
	runSync(t, env, 0)

	ann = mustContact(t, env, "ann@example.com")
	if ann.LastSeen != baseDate+1_200_000 {
		t.Errorf("expected last seen %d, got %d", baseDate+1_200_000, ann.LastSeen)
	}
}

func TestContactFirstNonEmptyNameWins(t *testing.T) {
	env := newTestEnv(t)
	env.Mock.AddMessage(remote.TestMessage("msg1",
		"ann@example.com", "bob@example.com", "Bare", baseDate))
	runSync(t, env, 0)

	if got := mustContact(t, env, "ann@example.com").Name; got != "" {
		t.Fatalf("expected empty name, got %q", got)
	}

	// A display name fills the empty slot...
	env.Mock.RecordAdd(remote.TestMessage("msg2",
		`"Ann Archer" <ann@example.com>`, "bob@example.com", "Named", baseDate+60_000))
	runSync(t, env, 0)

	if got := mustContact(t, env, "ann@example.com").Name; got != "Ann Archer" {
		t.Fatalf("expected 'Ann Archer', got %q", got)
	}

	// ...and later variants do not overwrite it.
	env.Mock.RecordAdd(remote.TestMessage("msg3",
		`"A. Archer" <ann@example.com>`, "bob@example.com", "Renamed", baseDate+120_000))
	runSync(t, env, 0)

	if got := mustContact(t, env, "ann@example.com").Name; got != "Ann Archer" {
		t.Errorf("expected name to stick as 'Ann Archer', got %q", got)
	}
}

func TestContactsSurviveItemDeletion(t *testing.T) {
	env := newTestEnv(t)
	env.Mock.AddMessage(remote.TestMessage("msg1",
		"ann@example.com", "bob@example.com", "Hello", baseDate))
	runSync(t, env, 0)

	env.Mock.RecordDelete("msg1")
	res := runSync(t, env, 0)
	assertResult(t, res, 0, 1, 0)
	assertItemCount(t, env.Store, 0)

	mustContact(t, env, "ann@example.com")
	mustContact(t, env, "bob@example.com")
}
