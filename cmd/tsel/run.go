package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tsel/internal/corpus"
	"tsel/internal/runner"
)

var (
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select and execute the tests impacted by current changes",
	Long: `Run the full pipeline: detect changes, select impacted tests, and execute
them. The critical prefix of the selection runs sequentially for fast
feedback; the remainder runs on a bounded worker pool with per-test retries.

Exit codes: 0 when every selected test passed (or nothing needed to run),
1 on any failure, 2 when interrupted.

Examples:
  tsel run                 # Full pipeline
  tsel run --dry-run       # Report the selection without executing
  tsel run --base=main     # Compare against main instead of the auto base`,
	Run: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Report the selection without executing tests")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	// Unexpected panics must not lose accumulated history.
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("unexpected error in pipeline", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
			a.close()
			os.Exit(exitFailure)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := a.runPipeline(ctx)
	a.close()
	os.Exit(code)
}

func (a *app) runPipeline(ctx context.Context) int {
	start := time.Now()

	pipe, err := a.newPipeline()
	if err != nil {
		a.logger.Error("failed to assemble pipeline", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}

	result, info, err := pipe.Select(ctx, baseFlag)
	if err != nil {
		a.logger.Error("selection failed", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}
	if ctx.Err() != nil {
		// An interrupt during analysis degrades VCS queries to an empty
		// change set; that is not a normal no-changes run.
		a.logger.Warn("run interrupted by user", nil)
		return exitInterrupted
	}

	printSelectionHuman(result, info)

	tests := result.Paths()
	if len(tests) == 0 {
		if info.NoChanges && a.cfg.Execution.SmokeTest {
			tests = a.smokeSelection(ctx)
		}
		if len(tests) == 0 {
			// Nothing to run is a normal, successful outcome.
			return exitOK
		}
	}

	if runDryRun {
		fmt.Println("\nDry run - tests would be executed with:")
		for _, t := range tests {
			fmt.Printf("  %s %s\n", a.cfg.Execution.Runner, t)
		}
		return exitOK
	}

	coordinator := runner.NewCoordinator(runner.Options{
		ProjectRoot:   a.cfg.ProjectRoot,
		Runner:        a.cfg.Execution.Runner,
		RunnerArgs:    a.cfg.Execution.RunnerArgs,
		TestTimeout:   time.Duration(a.cfg.Execution.TestTimeoutMs) * time.Millisecond,
		RetryAttempts: a.cfg.Execution.RetryAttempts,
		MaxWorkers:    a.cfg.Execution.MaxWorkers,
		CriticalCount: a.cfg.Execution.CriticalCount,
	}, a.recorder(), a.logger)

	ok, outcomes, err := coordinator.Run(ctx, tests)
	printOutcomesHuman(outcomes, ok)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// History already captured every settled test; close() flushes.
			a.logger.Warn("run interrupted by user", nil)
			return exitInterrupted
		}
		a.logger.Error("execution failed", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}

	a.logger.Info("run completed", map[string]interface{}{
		"tests":    len(tests),
		"success":  ok,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	})

	if !ok {
		return exitFailure
	}
	return exitOK
}

// smokeSelection picks the first available test when nothing changed, so a
// scheduled run still exercises the suite minimally.
func (a *app) smokeSelection(ctx context.Context) []string {
	tests, err := corpus.List(a.cfg.ProjectRoot, a.cfg.Corpus.TestRoot, a.cfg.Corpus.TestGlob)
	if err != nil || len(tests) == 0 {
		return nil
	}
	a.logger.Info("no changes detected, running smoke test", map[string]interface{}{
		"test": tests[0],
	})
	return tests[:1]
}

// recorder adapts the optional history store to the runner's interface.
func (a *app) recorder() runner.Recorder {
	if a.store == nil {
		return nil
	}
	return a.store
}
