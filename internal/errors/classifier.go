// Package errors implements the ErrorClassifier: a fixed rule table that
// pattern-matches raw error text into a detailed error taxonomy, per spec
// §4.7.
//
// Grounded on the teacher's internal/agent/reflection.go
// defaultErrorPatterns(): an ordered table of regex rules covering
// file-not-found, permission-denied, timeout, network, rate-limit and
// similar categories, each carrying a retry recommendation.
package errors

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Type is the closed set of error categories this classifier recognizes.
type Type string

const (
	TypeFileNotFound      Type = "file_not_found"
	TypePermissionDenied  Type = "permission_denied"
	TypeCommandNotFound   Type = "command_not_found"
	TypeTimeout           Type = "timeout"
	TypeNetworkError      Type = "network_error"
	TypeSyntaxError       Type = "syntax_error"
	TypeCompilationError  Type = "compilation_error"
	TypeTestFailure       Type = "test_failure"
	TypeResourceError     Type = "resource_error"
	TypeGitError          Type = "git_error"
	TypeRateLimit         Type = "rate_limit"
	TypeAuthError         Type = "auth_error"
	TypeAlreadyExists     Type = "already_exists"
	TypeInvalidArgs       Type = "invalid_args"
	TypeUnknown           Type = "unknown"
)

// rule is one entry of the fixed classification table.
type rule struct {
	typ          Type
	patterns     []*regexp.Regexp
	substrings   []string
	category     string
	isTransient  bool
	retryable    bool
	retryDelay   time.Duration
	maxRetries   int
}

// Classification is the result of Classify.
type Classification struct {
	Type        Type
	Category    string
	IsTransient bool
	Retryable   bool
	RetryDelay  time.Duration
	MaxRetries  int
	Confidence  float64
}

var table = []rule{
	{
		typ:         TypeRateLimit,
		patterns:    compile(`\b429\b`, `rate.?limit`, `too many requests`),
		substrings:  []string{"quota exceeded"},
		category:    "throttling",
		isTransient: true,
		retryable:   true,
		retryDelay:  2 * time.Second,
		maxRetries:  5,
	},
	{
		typ:         TypeTimeout,
		patterns:    compile(`timed? ?out`, `deadline exceeded`, `context deadline`),
		category:    "transient",
		isTransient: true,
		retryable:   true,
		retryDelay:  1 * time.Second,
		maxRetries:  3,
	},
	{
		typ:         TypeNetworkError,
		patterns:    compile(`connection refused`, `connection reset`, `no route to host`, `network is unreachable`, `EOF`),
		category:    "transient",
		isTransient: true,
		retryable:   true,
		retryDelay:  1 * time.Second,
		maxRetries:  3,
	},
	{
		typ:         TypeFileNotFound,
		patterns:    compile(`no such file`, `file not found`, `cannot find the (?:file|path)`, `ENOENT`),
		category:    "filesystem",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypePermissionDenied,
		patterns:    compile(`permission denied`, `access (?:is )?denied`, `EACCES`),
		category:    "filesystem",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeCommandNotFound,
		patterns:    compile(`command not found`, `executable file not found`),
		category:    "environment",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeAuthError,
		patterns:    compile(`unauthorized`, `\b401\b`, `\b403\b`, `invalid (?:api )?key`, `authentication failed`),
		category:    "auth",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeAlreadyExists,
		patterns:    compile(`already exists`, `EEXIST`),
		category:    "conflict",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeSyntaxError,
		patterns:    compile(`syntax error`, `unexpected token`, `parse error`),
		category:    "code",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeCompilationError,
		patterns:    compile(`compilation failed`, `build failed`, `undeclared name`, `undefined reference`),
		category:    "code",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeTestFailure,
		patterns:    compile(`test failed`, `assertion (?:error|failed)`, `expected .* but got`),
		category:    "code",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeResourceError,
		patterns:    compile(`out of memory`, `disk (?:is )?full`, `resource temporarily unavailable`, `too many open files`),
		category:    "resource",
		isTransient: true,
		retryable:   true,
		retryDelay:  5 * time.Second,
		maxRetries:  2,
	},
	{
		typ:         TypeGitError,
		patterns:    compile(`not a git repository`, `merge conflict`, `failed to push`, `git:`),
		substrings:  []string{"non-fast-forward"},
		category:    "vcs",
		isTransient: false,
		retryable:   false,
	},
	{
		typ:         TypeInvalidArgs,
		patterns:    compile(`invalid argument`, `missing required (?:argument|flag)`, `unknown flag`),
		category:    "usage",
		isTransient: false,
		retryable:   false,
	},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// Classify scans every pattern of every rule and keeps the best match:
// a regex match scores 0.9, a plain substring match scores 0.8. Unknown
// errors return Type=unknown, Retryable=false, Confidence=0.5.
func Classify(err string) Classification {
	lower := strings.ToLower(err)

	var best *rule
	bestScore := 0.0

	for i := range table {
		r := &table[i]
		for _, p := range r.patterns {
			if p.MatchString(err) && 0.9 > bestScore {
				best, bestScore = r, 0.9
			}
		}
		for _, s := range r.substrings {
			if strings.Contains(lower, strings.ToLower(s)) && 0.8 > bestScore {
				best, bestScore = r, 0.8
			}
		}
	}

	if best == nil {
		return Classification{Type: TypeUnknown, Category: "unknown", Retryable: false, Confidence: 0.5}
	}

	return Classification{
		Type:        best.typ,
		Category:    best.category,
		IsTransient: best.isTransient,
		Retryable:   best.retryable,
		RetryDelay:  best.retryDelay,
		MaxRetries:  best.maxRetries,
		Confidence:  bestScore,
	}
}

// RetryDelay computes exponential backoff: cls.RetryDelay * 2^attempt.
func RetryDelay(cls Classification, attempt int) time.Duration {
	return time.Duration(float64(cls.RetryDelay) * math.Pow(2, float64(attempt)))
}
