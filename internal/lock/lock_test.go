package lock

import (
	"testing"
	"time"
)

func TestAcquireGrantsWhenFree(t *testing.T) {
	m := New()
	if !m.Acquire("file.go", "agent-a", time.Minute) {
		t.Fatal("expected acquire to succeed on a free resource")
	}
}

func TestAcquireDeniesWhileHeldAndUnexpired(t *testing.T) {
	m := New()
	m.Acquire("file.go", "agent-a", time.Minute)
	if m.Acquire("file.go", "agent-b", time.Minute) {
		t.Fatal("expected second acquire to be denied while lock is fresh")
	}
}

func TestAcquireForciblyReleasesExpiredLock(t *testing.T) {
	m := New()
	start := time.Now()
	m.now = func() time.Time { return start }
	m.Acquire("file.go", "agent-a", time.Millisecond)

	m.now = func() time.Time { return start.Add(time.Second) }
	if !m.Acquire("file.go", "agent-b", time.Millisecond) {
		t.Fatal("expected acquire to succeed after prior lock expired")
	}
	owner, _ := m.Holder("file.go")
	if owner != "agent-b" {
		t.Fatalf("expected agent-b to now hold the lock, got %q", owner)
	}
}

func TestSelfReentryGoesThroughTimeoutCheck(t *testing.T) {
	m := New()
	start := time.Now()
	m.now = func() time.Time { return start }
	m.Acquire("file.go", "agent-a", time.Hour)

	// Same owner re-acquiring within the timeout window is still denied:
	// spec §9 preserves this as NOT a no-op.
	if m.Acquire("file.go", "agent-a", time.Hour) {
		t.Fatal("expected self-reentry within timeout to be denied, not treated as a no-op")
	}
}

func TestReleaseByNonOwnerIsNoOp(t *testing.T) {
	m := New()
	m.Acquire("file.go", "agent-a", time.Minute)
	m.Release("file.go", "agent-b")
	owner, ok := m.Holder("file.go")
	if !ok || owner != "agent-a" {
		t.Fatal("expected release by non-owner to be a no-op")
	}
}

func TestReleaseAllClearsOnlyThatAgent(t *testing.T) {
	m := New()
	m.Acquire("a.go", "agent-a", time.Minute)
	m.Acquire("b.go", "agent-b", time.Minute)
	m.ReleaseAll("agent-a")
	if _, ok := m.Holder("a.go"); ok {
		t.Fatal("expected agent-a's lock to be released")
	}
	if _, ok := m.Holder("b.go"); !ok {
		t.Fatal("expected agent-b's lock to remain held")
	}
}

func TestGlobConflictDetection(t *testing.T) {
	m := New()
	if !m.Acquire("src/**/*.go", "agent-a", time.Minute) {
		t.Fatal("expected initial glob acquire to succeed")
	}
	if m.Acquire("src/pkg/foo.go", "agent-b", time.Minute) {
		t.Fatal("expected glob conflict to deny the second acquire")
	}
}
