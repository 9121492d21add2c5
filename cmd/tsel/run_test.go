package main

import (
	"context"
	"testing"

	"tsel/internal/config"
	"tsel/internal/logging"
)

func TestRunPipelineInterruptedDuringAnalysis(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = t.TempDir() // not a repository; VCS queries degrade
	cfg.History.Enabled = false
	a := &app{cfg: cfg, logger: logging.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context yields an empty change set from the degraded VCS
	// path; that must surface as an interrupt, not a clean no-changes run.
	if code := a.runPipeline(ctx); code != exitInterrupted {
		t.Errorf("Expected exit code %d for interrupted analysis, got %d", exitInterrupted, code)
	}
}
