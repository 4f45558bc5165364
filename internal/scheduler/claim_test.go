package scheduler

import (
	"testing"
	"time"

	"hybridcore/internal/core"
)

func TestClaimNextOrdersByPriorityThenAge(t *testing.T) {
	s := NewClaimService([]string{"low-priority-task", "high-priority-task"})
	t.Cleanup(s.Stop)

	var lowID, highID string
	for id, task := range s.tasks {
		switch task.Description {
		case "low-priority-task":
			lowID = id
		case "high-priority-task":
			highID = id
			task.Priority = -1 // lower value: higher priority
		}
	}
	_ = lowID

	task, ok := s.ClaimNext("agent-1", nil)
	if !ok {
		t.Fatal("expected a claimable task")
	}
	if task.ID != highID {
		t.Fatalf("expected the lower-priority-value task to be claimed first, got %q", task.Description)
	}
}

func TestClaimNextPrefersTagMatch(t *testing.T) {
	s := NewClaimService([]string{"generic", "go-specific"})
	t.Cleanup(s.Stop)

	for _, task := range s.tasks {
		if task.Description == "go-specific" {
			task.Tags = []string{"go"}
		}
	}

	task, ok := s.ClaimNext("agent-1", []string{"go"})
	if !ok {
		t.Fatal("expected a claimable task")
	}
	if task.Description != "go-specific" {
		t.Fatalf("expected tag-matching task preferred, got %q", task.Description)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	s := NewClaimService([]string{"only-task"})
	t.Cleanup(s.Stop)

	first, ok := s.ClaimNext("agent-1", nil)
	if !ok {
		t.Fatal("expected first claim to succeed")
	}
	if first.Status != core.ClaimClaimed || first.ClaimedBy != "agent-1" {
		t.Fatalf("expected claimed by agent-1, got %+v", first)
	}

	_, ok = s.ClaimNext("agent-2", nil)
	if ok {
		t.Fatal("expected no further claimable tasks while the only task is held")
	}
}

func TestCompleteRequiresOwnership(t *testing.T) {
	s := NewClaimService([]string{"t"})
	t.Cleanup(s.Stop)
	task, _ := s.ClaimNext("agent-1", nil)

	s.Complete(task.ID, "agent-2") // wrong owner, ignored
	if got := s.tasks[task.ID].Status; got != core.ClaimClaimed {
		t.Fatalf("expected completion by non-owner to be ignored, got status %q", got)
	}

	s.Complete(task.ID, "agent-1")
	if got := s.tasks[task.ID].Status; got != core.ClaimCompleted {
		t.Fatalf("expected completion by owner to succeed, got status %q", got)
	}
}

func TestFailReturnsTaskToAvailable(t *testing.T) {
	s := NewClaimService([]string{"t"})
	t.Cleanup(s.Stop)
	task, _ := s.ClaimNext("agent-1", nil)

	s.Fail(task.ID, "agent-1")

	again, ok := s.ClaimNext("agent-2", nil)
	if !ok || again.ID != task.ID {
		t.Fatal("expected the failed task to be reclaimable by another agent")
	}
}

func TestExpiredClaimIsReclaimed(t *testing.T) {
	s := NewClaimService([]string{"t"})
	t.Cleanup(s.Stop)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	task, _ := s.ClaimNext("agent-1", nil)
	clock = clock.Add(claimTTL + time.Second)

	again, ok := s.ClaimNext("agent-2", nil)
	if !ok || again.ID != task.ID {
		t.Fatal("expected the expired claim to be reclaimed and re-claimable")
	}
}

func TestIsAllDone(t *testing.T) {
	s := NewClaimService([]string{"a", "b"})
	t.Cleanup(s.Stop)
	if s.IsAllDone() {
		t.Fatal("expected not all done while tasks remain available")
	}

	for {
		task, ok := s.ClaimNext("agent-1", nil)
		if !ok {
			break
		}
		s.Complete(task.ID, "agent-1")
	}

	if !s.IsAllDone() {
		t.Fatal("expected all done once every task is completed")
	}
}
