// Package analyzer implements the TaskAnalyzer: a pure heuristic
// classifier turning a natural-language task string into a TaskAnalysis
// (complexity, specializations, parallelism, estimated steps, task type,
// confidence). It never calls out to an LLM or any other component.
//
// Grounded on the teacher's internal/router/analyzer.go: regex pattern
// families compiled once at construction, a bilingual (Russian/English)
// weighted-keyword scoring table, and first-match-wins category
// selection.
package analyzer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Complexity is the closed set of complexity tiers.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// TaskType is the closed set of task-type categories, in priority order
// when more than one matches.
type TaskType string

const (
	TaskTypeReview   TaskType = "review"
	TaskTypeSearch   TaskType = "search"
	TaskTypePlan     TaskType = "plan"
	TaskTypeTest     TaskType = "test"
	TaskTypeData     TaskType = "data"
	TaskTypePPT      TaskType = "ppt"
	TaskTypeDocument TaskType = "document"
	TaskTypeImage    TaskType = "image"
	TaskTypeCode     TaskType = "code"
)

// Specialization is one of the six heuristic domain tags.
type Specialization string

const (
	SpecDatabase    Specialization = "database"
	SpecFrontend    Specialization = "frontend"
	SpecBackend     Specialization = "backend"
	SpecDevOps      Specialization = "devops"
	SpecSecurity    Specialization = "security"
	SpecPerformance Specialization = "performance"
)

// TaskAnalysis is the result of Analyze.
type TaskAnalysis struct {
	Complexity      Complexity
	Specializations []Specialization
	Parallelism     int
	EstimatedSteps  int
	TaskType        TaskType
	Confidence      float64
}

var allSpecializations = []Specialization{
	SpecDatabase, SpecFrontend, SpecBackend, SpecDevOps, SpecSecurity, SpecPerformance,
}

var specializationPatterns = map[Specialization][]*regexp.Regexp{
	SpecDatabase: compileAll(
		`\bdatabase\b`, `\bsql\b`, `\bquery\b`, `\bschema\b`, `\bmigration\b`,
		`база данных`, `запрос`, `таблиц`,
	),
	SpecFrontend: compileAll(
		`\bfrontend\b`, `\bui\b`, `\bcomponent\b`, `\bcss\b`, `\breact\b`, `\bvue\b`,
		`интерфейс`, `фронтенд`,
	),
	SpecBackend: compileAll(
		`\bbackend\b`, `\bapi\b`, `\bserver\b`, `\bendpoint\b`, `\bservice\b`,
		`бэкенд`, `сервер`,
	),
	SpecDevOps: compileAll(
		`\bdeploy\w*\b`, `\bci/?cd\b`, `\bdocker\b`, `\bkubernetes\b`, `\bpipeline\b`,
		`деплой`, `развертыван`,
	),
	SpecSecurity: compileAll(
		`\bsecurity\b`, `\bvulnerab\w*\b`, `\bauth\w*\b`, `\bencrypt\w*\b`, `\bexploit\b`,
		`безопасност`, `уязвимост`,
	),
	SpecPerformance: compileAll(
		`\bperformance\b`, `\boptimi[sz]e\b`, `\blatency\b`, `\bbenchmark\b`, `\bprofil\w*\b`,
		`производительност`, `оптимизац`,
	),
}

var taskTypePatterns = []struct {
	t        TaskType
	patterns []*regexp.Regexp
}{
	{TaskTypeReview, compileAll(`\breview\b`, `\bcode review\b`, `\bcritique\b`, `ревью`, `проверь код`)},
	{TaskTypeSearch, compileAll(`\bfind\b`, `\bsearch\b`, `\blocate\b`, `\bwhere is\b`, `найди`, `поищи`)},
	{TaskTypePlan, compileAll(`\bplan\b`, `\bdesign\b`, `\barchitect\w*\b`, `\bproposal\b`, `спланируй`, `план`)},
	{TaskTypeTest, compileAll(`\btest\b`, `\bunit test\b`, `\bverify\b`, `\bassert\b`, `тест`, `проверка`)},
	{TaskTypeData, compileAll(`\bdataset\b`, `\bcsv\b`, `\bdata pipeline\b`, `\bETL\b`, `данные`)},
	{TaskTypePPT, compileAll(`\bslide\w*\b`, `\bpowerpoint\b`, `\bpresentation\b`, `презентаци`)},
	{TaskTypeDocument, compileAll(`\bdocument\w*\b`, `\breport\b`, `\bmanual\b`, `документ`)},
	{TaskTypeImage, compileAll(`\bimage\b`, `\bscreenshot\b`, `\bdiagram\b`, `\bphoto\b`, `изображени`)},
}

// complexityPatterns drives the simple/moderate upgrade to complex; the
// baseline tier is simple, upgraded on match, then force-upgraded per
// spec (length/enumeration) regardless of pattern matches.
var complexityPatterns = struct {
	moderate []*regexp.Regexp
	complex  []*regexp.Regexp
}{
	moderate: compileAll(
		`\bimplement\b`, `\brefactor\b`, `\badd\b.+\bfeature\b`, `\bintegrate\b`,
		`реализуй`, `добавь`, `рефактори`,
	),
	complex: compileAll(
		`\barchitect\w*\b`, `\bmigrate\b`, `\boverhaul\b`, `\bacross the codebase\b`,
		`\bend[- ]to[- ]end\b`, `\bmultiple\b.+\bservices\b`,
		`проанализируй`, `исследуй всё`,
	),
}

var parallelismWords = compileAll(
	`\bparallel\w*\b`, `\bconcurrent\w*\b`, `\bsimultaneous\w*\b`, `\bin parallel\b`,
	`параллельно`, `одновременно`,
)

// quantifierPattern captures "N 个", "N 份", "N 批" (Chinese bulk-count
// quantifiers named directly in spec.md §4.1) as well as a plain English
// "N tasks/items/files" form.
var quantifierPattern = regexp.MustCompile(`(\d+)\s*(?:个|份|批|tasks?|items?|files?)`)

var enumeratedItemPattern = regexp.MustCompile(`\d+\.`)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Analyze classifies task using the ordered heuristic rules from spec §4.1.
// It is a pure function: identical input always yields identical output.
func Analyze(task string) TaskAnalysis {
	trimmed := strings.TrimSpace(task)
	if trimmed == "" {
		return TaskAnalysis{
			Complexity:     ComplexitySimple,
			Specializations: nil,
			Parallelism:    1,
			EstimatedSteps: 3,
			TaskType:       TaskTypeCode,
			Confidence:     0,
		}
	}

	lower := strings.ToLower(trimmed)

	complexity := ComplexitySimple
	if matchesAny(lower, complexityPatterns.moderate) {
		complexity = ComplexityModerate
	}
	if matchesAny(lower, complexityPatterns.complex) {
		complexity = ComplexityComplex
	}

	enumeratedItems := len(enumeratedItemPattern.FindAllString(trimmed, -1))
	if len(trimmed) > 500 || enumeratedItems >= 3 {
		complexity = ComplexityComplex
	}

	var specs []Specialization
	for _, s := range allSpecializations {
		if matchesAny(lower, specializationPatterns[s]) {
			specs = append(specs, s)
		}
	}

	parallelism := max(1, len(specs))
	if matchesAny(lower, parallelismWords) {
		parallelism = max(parallelism, 3)
	}
	if m := quantifierPattern.FindStringSubmatch(trimmed); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 5 {
			parallelism = clamp(int(math.Ceil(float64(n)/10.0)), 1, 10)
		}
	}

	estimatedSteps := map[Complexity]int{
		ComplexitySimple:   3,
		ComplexityModerate: 5,
		ComplexityComplex:  15,
	}[complexity]
	if steps := enumeratedItems * 3; steps > estimatedSteps {
		estimatedSteps = steps
	}

	taskType := TaskTypeCode
	for _, tt := range taskTypePatterns {
		if matchesAny(lower, tt.patterns) {
			taskType = tt.t
			break
		}
	}

	confidence := computeConfidence(complexity, len(specs), enumeratedItems)

	return TaskAnalysis{
		Complexity:      complexity,
		Specializations: specs,
		Parallelism:     parallelism,
		EstimatedSteps:  estimatedSteps,
		TaskType:        taskType,
		Confidence:      confidence,
	}
}

// computeConfidence is an additive heuristic capped at 1, mirroring the
// teacher's calculateScore accumulation style: more specific signal
// (specializations found, explicit enumeration) raises confidence in the
// classification above a 0.5 baseline.
func computeConfidence(c Complexity, specCount, enumeratedItems int) float64 {
	confidence := 0.5
	if c != ComplexitySimple {
		confidence += 0.15
	}
	confidence += 0.1 * float64(min(specCount, 3))
	if enumeratedItems > 0 {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
