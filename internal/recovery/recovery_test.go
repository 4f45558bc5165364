package recovery

import (
	"fmt"
	"testing"

	"hybridcore/internal/core"
	"hybridcore/internal/learning"
)

func TestHandleErrorNoMatchIsNotifyOnly(t *testing.T) {
	e := NewEngine()
	event := e.HandleError("E1", "the flux capacitor has fluxed incorrectly", Callbacks{})
	if event.Action != ActionNotifyOnly || event.Status != StatusFailed {
		t.Fatalf("expected notify_only/failed for unmatched error, got %+v", event)
	}
}

func TestHandleErrorAutoRetrySucceedsThenExhausts(t *testing.T) {
	e := NewEngine()
	calls := 0
	cb := Callbacks{OnRetry: func() error { calls++; return nil }}

	var last ErrorRecoveryEvent
	for i := 0; i < 10; i++ {
		last = e.HandleError("rate-limit-1", "429 rate limit exceeded", cb)
		if last.Status == StatusFailed {
			break
		}
	}
	if last.Status != StatusFailed {
		t.Fatalf("expected retries to eventually exhaust and fail, got %+v", last)
	}
	if calls == 0 {
		t.Fatal("expected OnRetry to have been invoked at least once")
	}
}

func TestOpenSettingsLeavesStatusPending(t *testing.T) {
	e := NewEngine()
	event := e.HandleError("E2", "unauthorized: invalid api key", Callbacks{})
	if event.Action != ActionOpenSettings || event.Status != StatusPending {
		t.Fatalf("expected open_settings/pending, got %+v", event)
	}
}

// TestRateLimitLearningLoop mirrors spec.md end-to-end scenario 5: after
// enough successful recoveries from repeated "429 rate limit" errors for
// tool "bash", the learned solution's confidence crosses 0.6 and
// subsequent errors are annotated as using the learned action.
//
// Each iteration uses a distinct errCode, one per incident, so Engine's
// per-errorCode retry counter (a backoff budget for a single in-flight
// operation) never exhausts across iterations; only the learning store's
// message-keyed confidence accumulates across the loop.
func TestRateLimitLearningLoop(t *testing.T) {
	store := learning.New()
	engine := NewEngine()
	learner := NewLearner(engine, store)
	cb := Callbacks{OnRetry: func() error { return nil }}

	var last ErrorRecoveryEvent
	usedLearned := false
	for i := 0; i < 10; i++ {
		errCode := fmt.Sprintf("rate-limit-bash-%d", i)
		last = learner.HandleError(errCode, "bash", "429 rate limit exceeded", cb)
		if last.LearnedAction != "" {
			usedLearned = true
			break
		}
	}

	if !usedLearned {
		t.Fatalf("expected confidence to cross the learned-action threshold within 10 incidents, last event: %+v", last)
	}
	if last.LearnedAction != string(core.SolutionRetryWithDelay) {
		t.Fatalf("expected the learned action to be the retry-with-delay solution type, got %q", last.LearnedAction)
	}

	sig := learning.ComputeErrorSignature("bash", "429 rate limit exceeded")
	sol, ok := store.Solution(sig)
	if !ok {
		t.Fatal("expected a learned solution entry for the repeated rate-limit error")
	}
	if sol.Confidence < learnedConfidenceThreshold {
		t.Fatalf("expected confidence to have crossed %v, got %v", learnedConfidenceThreshold, sol.Confidence)
	}
}
