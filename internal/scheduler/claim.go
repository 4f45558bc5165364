// Package scheduler implements SwarmScheduler (the DAG-ordered and
// optimistic-claim execution engine) and, in this file, the
// TaskClaimService used by optimistic-claim mode, per spec §4.6.6.
//
// Grounded on the teacher's internal/agent/priority_queue.go (heap-
// ordered ready queue by TaskPriority) for the claim-preference ordering,
// and generalized from its status-machine vocabulary (Pending/Blocked/
// Ready/Running/Completed/Failed) into spec's available/claimed/completed
// ClaimableTask machine.
package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hybridcore/internal/core"
)

const claimTTL = 5 * time.Minute

// claimCleanupInterval is the background reclaim sweep spec §4.6.6
// requires ("a cleanup tick runs every 30 s"), named as its own constant
// rather than a literal buried in the ticker construction, matching the
// teacher's treatment of its coordinator's fallback tick.
const claimCleanupInterval = 30 * time.Second

// ClaimService is the transactional task-claim pool for optimistic-
// concurrency scheduling. A claim attempt that finds a task available
// atomically sets it to claimed (spec §5). A background goroutine also
// sweeps expired claims on claimCleanupInterval (or whatever interval the
// caller supplied), independently of any in-progress ClaimNext call, so a
// stalled worker's claim is reclaimed even if nobody else is polling.
type ClaimService struct {
	mu    sync.Mutex
	tasks map[string]*core.ClaimableTask
	now   func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewClaimService publishes descriptions as available ClaimableTasks,
// each given a fresh id, and starts the background cleanup sweep on
// claimCleanupInterval. Callers must call Stop when done to release the
// sweep goroutine.
func NewClaimService(descriptions []string) *ClaimService {
	tasks := make(map[string]*core.ClaimableTask, len(descriptions))
	now := time.Now
	for i, d := range descriptions {
		id := uuid.New().String()
		tasks[id] = &core.ClaimableTask{
			ID:          id,
			Description: d,
			Priority:    i,
			CreatedAt:   now(),
			Status:      core.ClaimAvailable,
		}
	}
	return newClaimService(tasks, claimCleanupInterval)
}

// newClaimServiceForAgents publishes each agent's prompt as a claimable
// task keyed by the agent's own config id (rather than a fresh uuid), so
// a claimed task maps directly back to the AgentConfig the scheduler
// should execute; its tool list doubles as the task's preference tags and
// its spec's priority carries over (spec §4.6.6, SPEC_FULL.md
// supplemented feature 2).
func newClaimServiceForAgents(agents []core.AgentConfig, cleanupInterval time.Duration) *ClaimService {
	tasks := make(map[string]*core.ClaimableTask, len(agents))
	now := time.Now
	for _, a := range agents {
		tasks[a.ID] = &core.ClaimableTask{
			ID:          a.ID,
			Description: a.Prompt,
			Priority:    a.Spec.Priority,
			Tags:        a.Tools,
			CreatedAt:   now(),
			Status:      core.ClaimAvailable,
		}
	}
	return newClaimService(tasks, cleanupInterval)
}

func newClaimService(tasks map[string]*core.ClaimableTask, cleanupInterval time.Duration) *ClaimService {
	if cleanupInterval <= 0 {
		cleanupInterval = claimCleanupInterval
	}
	s := &ClaimService{
		tasks:           tasks,
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *ClaimService) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.reclaimExpiredLocked()
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop releases the background cleanup sweep. Idempotent.
func (s *ClaimService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// reclaimExpiredLocked returns any claimed task whose expiry has passed
// back to available. Caller must hold mu.
func (s *ClaimService) reclaimExpiredLocked() {
	now := s.now()
	for _, t := range s.tasks {
		if t.Status == core.ClaimClaimed && now.After(t.ExpiresAt) {
			t.Status = core.ClaimAvailable
			t.ClaimedBy = ""
		}
	}
}

// ClaimNext selects the highest-priority available task (lower Priority
// value wins), preferring one whose tags intersect preferTags, sets it
// claimed with a 5-minute expiry, and returns it. Before the attempt, it
// scans all claims and reclaims any expired ones.
func (s *ClaimService) ClaimNext(agentID string, preferTags []string) (*core.ClaimableTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reclaimExpiredLocked()

	var candidates []*core.ClaimableTask
	for _, t := range s.tasks {
		if t.Status == core.ClaimAvailable {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Priority, candidates[j].Priority
		if pi != pj {
			return pi < pj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	if len(preferTags) > 0 {
		for _, t := range candidates {
			if hasAnyTag(t.Tags, preferTags) {
				return s.claimLocked(t, agentID), true
			}
		}
	}

	return s.claimLocked(candidates[0], agentID), true
}

func (s *ClaimService) claimLocked(t *core.ClaimableTask, agentID string) *core.ClaimableTask {
	t.Status = core.ClaimClaimed
	t.ClaimedBy = agentID
	t.ExpiresAt = s.now().Add(claimTTL)
	return t
}

func hasAnyTag(tags, preferred []string) bool {
	set := make(map[string]bool, len(preferred))
	for _, t := range preferred {
		set[t] = true
	}
	for _, t := range tags {
		if set[t] {
			return true
		}
	}
	return false
}

// Complete marks taskID completed; ignored unless agentID is the current
// owner.
func (s *ClaimService) Complete(taskID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok && t.Status == core.ClaimClaimed && t.ClaimedBy == agentID {
		t.Status = core.ClaimCompleted
	}
}

// Fail returns taskID to available; ignored unless agentID is the current
// owner.
func (s *ClaimService) Fail(taskID, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok && t.Status == core.ClaimClaimed && t.ClaimedBy == agentID {
		t.Status = core.ClaimAvailable
		t.ClaimedBy = ""
	}
}

// IsAllDone reports whether no task remains available or claimed.
func (s *ClaimService) IsAllDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaimExpiredLocked()
	for _, t := range s.tasks {
		if t.Status != core.ClaimCompleted {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every tracked task, for reporting/tests.
func (s *ClaimService) Snapshot() []core.ClaimableTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ClaimableTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}
