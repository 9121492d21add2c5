package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// stubRecorder collects RecordRun calls from completing workers.
type stubRecorder struct {
	mu    sync.Mutex
	calls map[string]bool // test path -> success
}

func (r *stubRecorder) RecordRun(testPath string, _ time.Duration, success bool, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]bool)
	}
	r.calls[testPath] = success
	return nil
}

// writeRunner writes a shell script that acts as the test runner binary.
func writeRunner(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script runner stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("Failed to write runner stub: %v", err)
	}
	return path
}

func TestRunMissingRunnerIsFatal(t *testing.T) {
	c := NewCoordinator(Options{Runner: "definitely-not-a-real-test-runner"}, nil, logging.Discard())

	ok, outcomes, err := c.Run(context.Background(), []string{"tests/test_a.py"})
	if ok || outcomes != nil {
		t.Errorf("Expected no outcomes, got ok=%v outcomes=%v", ok, outcomes)
	}
	if errors.CodeOf(err) != errors.RunnerMissing {
		t.Errorf("Expected RUNNER_MISSING, got %v", err)
	}
}

func TestRunEmptySelection(t *testing.T) {
	c := NewCoordinator(Options{Runner: "definitely-not-a-real-test-runner"}, nil, logging.Discard())

	ok, outcomes, err := c.Run(context.Background(), nil)
	if !ok || outcomes != nil || err != nil {
		t.Errorf("Expected trivial success for empty selection, got ok=%v outcomes=%v err=%v",
			ok, outcomes, err)
	}
}

func TestRunAllPass(t *testing.T) {
	script := writeRunner(t, "exit 0\n")
	rec := &stubRecorder{}
	c := NewCoordinator(Options{
		ProjectRoot:   t.TempDir(),
		Runner:        script,
		RetryAttempts: 1,
		CriticalCount: 1,
		MaxWorkers:    2,
	}, rec, logging.Discard())

	tests := []string{"tests/test_c.py", "tests/test_a.py", "tests/test_b.py"}
	ok, outcomes, err := c.Run(context.Background(), tests)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ok {
		t.Error("Expected overall success")
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}

	// The critical test reports first; the parallel remainder is sorted.
	if outcomes[0].TestPath != "tests/test_c.py" {
		t.Errorf("Expected critical test first, got %s", outcomes[0].TestPath)
	}
	if outcomes[1].TestPath != "tests/test_a.py" || outcomes[2].TestPath != "tests/test_b.py" {
		t.Errorf("Expected sorted remainder, got %s then %s",
			outcomes[1].TestPath, outcomes[2].TestPath)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 3 {
		t.Errorf("Expected 3 recorded runs, got %d", len(rec.calls))
	}
}

func TestRunRecordsFailure(t *testing.T) {
	script := writeRunner(t, "echo 'AssertionError'; exit 1\n")
	rec := &stubRecorder{}
	c := NewCoordinator(Options{
		ProjectRoot:   t.TempDir(),
		Runner:        script,
		RetryAttempts: 1,
		CriticalCount: 0,
		MaxWorkers:    1,
	}, rec, logging.Discard())

	ok, outcomes, err := c.Run(context.Background(), []string{"tests/test_a.py"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok {
		t.Error("Expected overall failure")
	}
	if len(outcomes) != 1 || outcomes[0].Success {
		t.Fatalf("Expected one failed outcome, got %+v", outcomes)
	}
	if outcomes[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", outcomes[0].Attempts)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if success, recorded := rec.calls["tests/test_a.py"]; !recorded || success {
		t.Errorf("Expected failure recorded, got calls=%v", rec.calls)
	}
}

func TestRunRetriesFlakyTest(t *testing.T) {
	// Fails the first invocation per test, passes afterwards.
	dir := t.TempDir()
	script := writeRunner(t, fmt.Sprintf(
		"marker=%q/$(basename \"$1\").ran\nif [ ! -f \"$marker\" ]; then\n  touch \"$marker\"\n  exit 1\nfi\nexit 0\n",
		dir))

	c := NewCoordinator(Options{
		ProjectRoot:   dir,
		Runner:        script,
		RetryAttempts: 2,
		CriticalCount: 0,
		MaxWorkers:    1,
	}, nil, logging.Discard())

	ok, outcomes, err := c.Run(context.Background(), []string{"tests/test_flaky.py"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ok {
		t.Error("Expected flaky test to pass on retry")
	}
	if len(outcomes) != 1 || outcomes[0].Attempts != 2 {
		t.Fatalf("Expected 2 attempts, got %+v", outcomes)
	}
}

func TestRunCriticalFailureDoesNotAbortRemainder(t *testing.T) {
	// The critical test fails; the remaining test still runs.
	dir := t.TempDir()
	script := writeRunner(t,
		"case \"$1\" in\n  *test_critical*) exit 1 ;;\n  *) exit 0 ;;\nesac\n")

	c := NewCoordinator(Options{
		ProjectRoot:   dir,
		Runner:        script,
		RetryAttempts: 1,
		CriticalCount: 1,
		MaxWorkers:    1,
	}, nil, logging.Discard())

	ok, outcomes, err := c.Run(context.Background(), []string{"tests/test_critical.py", "tests/test_rest.py"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ok {
		t.Error("Expected overall failure")
	}
	if len(outcomes) != 2 {
		t.Fatalf("Expected both tests to run, got %d outcomes", len(outcomes))
	}
	if outcomes[0].Success || !outcomes[1].Success {
		t.Errorf("Expected critical failure and remainder pass, got %+v", outcomes)
	}
}
