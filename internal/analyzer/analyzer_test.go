package analyzer

import "testing"

func TestAnalyzeEmpty(t *testing.T) {
	a := Analyze("   ")
	if a.Complexity != ComplexitySimple {
		t.Fatalf("expected simple complexity for empty task, got %v", a.Complexity)
	}
	if a.Confidence != 0 {
		t.Fatalf("expected zero confidence for empty task, got %v", a.Confidence)
	}
}

func TestAnalyzeSimpleSearch(t *testing.T) {
	a := Analyze("Find the definition of foo")
	if a.Complexity != ComplexitySimple {
		t.Fatalf("expected simple complexity, got %v", a.Complexity)
	}
	if a.TaskType != TaskTypeSearch {
		t.Fatalf("expected search task type, got %v", a.TaskType)
	}
	if a.Parallelism != 1 {
		t.Fatalf("expected parallelism 1, got %v", a.Parallelism)
	}
}

func TestAnalyzeSpecializationsAndParallelism(t *testing.T) {
	a := Analyze("Refactor the database layer and the frontend in parallel")
	if len(a.Specializations) != 2 {
		t.Fatalf("expected 2 specializations, got %v", a.Specializations)
	}
	if a.Parallelism < 3 {
		t.Fatalf("expected parallelism raised to >= 3 by explicit parallel word, got %d", a.Parallelism)
	}
}

func TestAnalyzeLongTaskForcesComplex(t *testing.T) {
	long := ""
	for i := 0; i < 520; i++ {
		long += "a"
	}
	a := Analyze(long)
	if a.Complexity != ComplexityComplex {
		t.Fatalf("expected complex complexity for task longer than 500 chars, got %v", a.Complexity)
	}
}

func TestAnalyzeEnumeratedItemsForceComplexAndSteps(t *testing.T) {
	a := Analyze("Please do: 1. fix the bug 2. add a test 3. update docs 4. ship it")
	if a.Complexity != ComplexityComplex {
		t.Fatalf("expected complex complexity with >=3 enumerated items, got %v", a.Complexity)
	}
	if a.EstimatedSteps < 12 {
		t.Fatalf("expected estimated steps raised by enumerated items*3, got %d", a.EstimatedSteps)
	}
}

func TestAnalyzeQuantifierClampsParallelism(t *testing.T) {
	a := Analyze("Process 42 files")
	if a.Parallelism != 5 {
		t.Fatalf("expected parallelism ceil(42/10)=5, got %d", a.Parallelism)
	}
}

func TestAnalyzeQuantifierBelowThresholdIgnored(t *testing.T) {
	a := Analyze("Process 3 files")
	if a.Parallelism != 1 {
		t.Fatalf("expected parallelism untouched for N<=5, got %d", a.Parallelism)
	}
}
