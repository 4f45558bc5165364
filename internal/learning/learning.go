// Package learning implements LearningStrategy: a signature-keyed,
// Wilson-scored table of learned error solutions plus a bounded learning
// history ring, per spec §4.8.
//
// Grounded on the teacher's internal/memory/error_store.go (signature-
// keyed persistent map, substring-match lookup, load/save-through-YAML
// shape), with its exponential-moving-average SuccessRate replaced by a
// genuine Wilson-lower-bound-95% confidence (internal/learning/wilson.go)
// per spec §3.1's invariant.
package learning

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"hybridcore/internal/core"
	"hybridcore/internal/errors"
)

const (
	historyCap     = 500
	historyTrimTo  = 250
	minConfidence  = 0.3
	minSuccessUses = 2
)

var (
	pathPattern    = regexp.MustCompile(`(?:/[\w.\-]+)+`)
	lineColPattern = regexp.MustCompile(`:\d+:\d+`)
	uuidPattern    = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexHashPattern = regexp.MustCompile(`\b[0-9a-f]{7,64}\b`)
	integerPattern = regexp.MustCompile(`\b\d+\b`)
	wsPattern      = regexp.MustCompile(`\s+`)
)

// HistoryEntry records one learn() outcome for audit/inspection.
type HistoryEntry struct {
	Signature string
	ToolName  string
	Success   bool
	Timestamp time.Time
}

// Store is the process-wide, concurrency-safe learned-solutions table.
type Store struct {
	mu        sync.RWMutex
	solutions map[string]core.ErrorSolution
	history   []HistoryEntry
	now       func() time.Time
}

// New creates a Store seeded with a handful of hard-coded default
// solutions, keyed default_<tool>_<errorType>, matching spec §4.8.
func New() *Store {
	s := &Store{solutions: make(map[string]core.ErrorSolution), now: time.Now}
	s.seedDefaults()
	return s
}

func (s *Store) seedDefaults() {
	now := s.now()
	defaults := []core.ErrorSolution{
		{Signature: "default_bash_rate_limit", SolutionType: core.SolutionRetryWithDelay, Action: "wait and retry with backoff", ToolName: "bash", ErrorType: string(errors.TypeRateLimit), IsDefault: true, FirstSeen: now, LastUpdated: now},
		{Signature: "default_*_timeout", SolutionType: core.SolutionRetryWithDelay, Action: "retry with a shorter scope", ToolName: "*", ErrorType: string(errors.TypeTimeout), IsDefault: true, FirstSeen: now, LastUpdated: now},
		{Signature: "default_*_network_error", SolutionType: core.SolutionRetryWithDelay, Action: "retry after a brief delay", ToolName: "*", ErrorType: string(errors.TypeNetworkError), IsDefault: true, FirstSeen: now, LastUpdated: now},
		{Signature: "default_*_file_not_found", SolutionType: core.SolutionToolSwitch, Action: "re-check the path with a list/glob tool", ToolName: "*", ErrorType: string(errors.TypeFileNotFound), IsDefault: true, FirstSeen: now, LastUpdated: now},
		{Signature: "default_*_auth_error", SolutionType: core.SolutionManual, Action: "surface for credential review", ToolName: "*", ErrorType: string(errors.TypeAuthError), IsDefault: true, FirstSeen: now, LastUpdated: now},
	}
	for _, d := range defaults {
		d.Confidence = 0.5
		s.solutions[d.Signature] = d
	}
}

// ComputeErrorSignature normalizes message by replacing paths,
// line:column positions, standalone integers, UUIDs, and hex hashes with
// placeholders, lowercases, collapses whitespace, then MD5-hashes with a
// "toolName:" prefix, truncated to 12 hex chars. Messages differing only
// in those normalized elements hash identically (spec §8 invariant 4).
func ComputeErrorSignature(toolName, message string) string {
	normalized := message
	normalized = lineColPattern.ReplaceAllString(normalized, ":LN:COL")
	normalized = uuidPattern.ReplaceAllString(normalized, "UUID")
	normalized = pathPattern.ReplaceAllString(normalized, "PATH")
	normalized = hexHashPattern.ReplaceAllString(normalized, "HASH")
	normalized = integerPattern.ReplaceAllString(normalized, "N")
	normalized = strings.ToLower(normalized)
	normalized = strings.TrimSpace(wsPattern.ReplaceAllString(normalized, " "))

	sum := md5.Sum([]byte(toolName + ":" + normalized))
	return hex.EncodeToString(sum[:])[:12]
}

// FindSolution tries the exact signature, then default_<toolName>_<type>,
// then default_*_<type>. A match is valid only if confidence >= 0.3 and
// successCount >= 2.
func (s *Store) FindSolution(toolName, message string, cls errors.Classification) (core.ErrorSolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig := ComputeErrorSignature(toolName, message)
	candidates := []string{
		sig,
		fmt.Sprintf("default_%s_%s", toolName, cls.Type),
		fmt.Sprintf("default_*_%s", cls.Type),
	}
	for _, key := range candidates {
		if sol, ok := s.solutions[key]; ok {
			if sol.Confidence >= minConfidence && sol.SuccessCount >= minSuccessUses {
				return sol, true
			}
		}
	}
	return core.ErrorSolution{}, false
}

// SuggestSolution returns the found solution, else a default retry
// suggestion derived from the classifier's retryable field.
func (s *Store) SuggestSolution(toolName, message string, cls errors.Classification) core.ErrorSolution {
	if sol, ok := s.FindSolution(toolName, message, cls); ok {
		return sol
	}
	solType := core.SolutionManual
	action := "no learned solution; surface to caller"
	if cls.Retryable {
		solType = core.SolutionRetryWithDelay
		action = "retry with exponential backoff"
	}
	return core.ErrorSolution{
		Signature:    ComputeErrorSignature(toolName, message),
		SolutionType: solType,
		Action:       action,
		Confidence:   0,
		ToolName:     toolName,
		ErrorType:    string(cls.Type),
	}
}

// Learn increments successCount or failureCount on the signature's entry
// (creating it on a first successful outcome), then recomputes confidence
// as the 95% Wilson lower bound.
func (s *Store) Learn(toolName, message string, solution core.ErrorSolution, success bool, cls errors.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := ComputeErrorSignature(toolName, message)
	entry, ok := s.solutions[sig]
	if !ok {
		if !success {
			// spec §4.8: only create the entry if the outcome is success,
			// unless we're updating an existing (possibly default) entry.
			return
		}
		entry = core.ErrorSolution{
			Signature:    sig,
			SolutionType: solution.SolutionType,
			Action:       solution.Action,
			ToolName:     toolName,
			ErrorType:    string(cls.Type),
			FirstSeen:    s.now(),
		}
	}

	if success {
		entry.SuccessCount++
	} else {
		entry.FailureCount++
	}
	entry.Confidence = WilsonLowerBound95(entry.SuccessCount, entry.FailureCount)
	entry.LastUpdated = s.now()
	s.solutions[sig] = entry

	s.history = append(s.history, HistoryEntry{Signature: sig, ToolName: toolName, Success: success, Timestamp: entry.LastUpdated})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyTrimTo:]
	}
}

// PruneWeakSolutions removes non-default entries whose confidence is below
// min.
func (s *Store) PruneWeakSolutions(min float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sig, sol := range s.solutions {
		if !sol.IsDefault && sol.Confidence < min {
			delete(s.solutions, sig)
		}
	}
}

// ExportSolutions returns every tracked solution, for an opaque
// persistence hook to store.
func (s *Store) ExportSolutions() []core.ErrorSolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ErrorSolution, 0, len(s.solutions))
	for _, sol := range s.solutions {
		out = append(out, sol)
	}
	return out
}

// ImportSolutions merges entries into the store; on a signature collision
// the entry with the newer LastUpdated wins.
func (s *Store) ImportSolutions(entries []core.ErrorSolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		existing, ok := s.solutions[e.Signature]
		if !ok || e.LastUpdated.After(existing.LastUpdated) {
			s.solutions[e.Signature] = e
		}
	}
}

// Solution returns a copy of the entry for signature, if present.
func (s *Store) Solution(signature string) (core.ErrorSolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sol, ok := s.solutions[signature]
	return sol, ok
}

// History returns a copy of the bounded learning-history ring.
func (s *Store) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
