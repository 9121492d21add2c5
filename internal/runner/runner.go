// Package runner executes the selected tests: a sequential critical prefix
// for fast feedback, then a bounded worker pool for the remainder.
package runner

import (
	"context"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// Outcome is the settled result of one test file across its retry budget.
type Outcome struct {
	TestPath string        `json:"testPath"`
	Success  bool          `json:"success"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	// Output is the runner's combined output from the last attempt.
	Output string `json:"-"`
}

// Recorder receives settled outcomes; updates may arrive from multiple
// completing workers.
type Recorder interface {
	RecordRun(testPath string, duration time.Duration, success bool, output string) error
}

// Options configure the coordinator.
type Options struct {
	ProjectRoot   string
	Runner        string   // test runner binary, e.g. "pytest"
	RunnerArgs    []string // flags appended after the test path
	TestTimeout   time.Duration
	RetryAttempts int
	MaxWorkers    int
	CriticalCount int
}

func (o Options) withDefaults() Options {
	if o.Runner == "" {
		o.Runner = "pytest"
	}
	if o.TestTimeout <= 0 {
		o.TestTimeout = 300 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 2
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 4
	}
	if o.CriticalCount < 0 {
		o.CriticalCount = 2
	}
	return o
}

// Coordinator runs a prioritized test list.
type Coordinator struct {
	opts     Options
	recorder Recorder
	logger   *logging.Logger

	// recordMu serializes history updates from completing workers.
	recordMu sync.Mutex
}

// NewCoordinator creates a coordinator. recorder may be nil when history is
// disabled.
func NewCoordinator(opts Options, recorder Recorder, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		opts:     opts.withDefaults(),
		recorder: recorder,
		logger:   logger.With(map[string]interface{}{"component": "runner"}),
	}
}

// Run executes tests in selection order: the critical prefix strictly
// sequentially, then the remainder on a bounded worker pool. Every settled
// test updates history regardless of overall outcome. Returns true only if
// every test eventually passed; a critical failure does not abort the rest.
//
// The only fatal condition is a missing runner binary. Context cancellation
// stops launching new tests; already-settled outcomes are kept.
func (c *Coordinator) Run(ctx context.Context, tests []string) (bool, []Outcome, error) {
	if len(tests) == 0 {
		return true, nil, nil
	}

	if _, err := exec.LookPath(c.opts.Runner); err != nil {
		return false, nil, errors.New(errors.RunnerMissing,
			"test runner binary not found: "+c.opts.Runner, err)
	}

	critical := c.opts.CriticalCount
	if critical > len(tests) {
		critical = len(tests)
	}

	outcomes := make([]Outcome, 0, len(tests))

	// Critical tests complete, pass or fail, before any remainder starts.
	for _, test := range tests[:critical] {
		if ctx.Err() != nil {
			return c.settle(outcomes, len(tests)), outcomes, ctx.Err()
		}
		out := c.runOne(ctx, test)
		c.record(out)
		outcomes = append(outcomes, out)
		if !out.Success {
			c.logger.Error("critical test failed, continuing with remaining tests", map[string]interface{}{
				"test": test,
			})
		}
	}

	remaining := tests[critical:]
	if len(remaining) > 0 {
		workers := c.opts.MaxWorkers
		if workers > len(remaining) {
			workers = len(remaining)
		}

		queue := make(chan string)
		results := make(chan Outcome)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for test := range queue {
					out := c.runOne(ctx, test)
					c.record(out)
					results <- out
				}
			}()
		}

		go func() {
			defer close(queue)
			for _, test := range remaining {
				select {
				case queue <- test:
				case <-ctx.Done():
					return
				}
			}
		}()
		go func() {
			wg.Wait()
			close(results)
		}()

		for out := range results {
			outcomes = append(outcomes, out)
		}
		// Remainder completion order is scheduling-dependent; report it
		// stably.
		rest := outcomes[critical:]
		sort.Slice(rest, func(i, j int) bool {
			return rest[i].TestPath < rest[j].TestPath
		})
	}

	if ctx.Err() != nil {
		return c.settle(outcomes, len(tests)), outcomes, ctx.Err()
	}
	return c.settle(outcomes, len(tests)), outcomes, nil
}

// settle reports overall success: every selected test ran and passed.
func (c *Coordinator) settle(outcomes []Outcome, wanted int) bool {
	if len(outcomes) != wanted {
		return false
	}
	for _, out := range outcomes {
		if !out.Success {
			return false
		}
	}
	return true
}

// runOne runs a single test with the retry budget. An attempt that times
// out is a failed attempt, not a crash; only failure on the final attempt
// settles the test as failed.
func (c *Coordinator) runOne(ctx context.Context, test string) Outcome {
	start := time.Now()
	out := Outcome{TestPath: test}

	err := retry.Do(
		func() error {
			out.Attempts++
			output, attemptErr := c.attempt(ctx, test)
			out.Output = output
			return attemptErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.opts.RetryAttempts)),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("test attempt failed, retrying", map[string]interface{}{
				"test":    test,
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
	)

	out.Duration = time.Since(start)
	out.Success = err == nil

	if out.Success {
		c.logger.Info("test passed", map[string]interface{}{
			"test":     test,
			"attempts": out.Attempts,
			"duration": out.Duration.Round(time.Millisecond).String(),
		})
	} else {
		c.logger.Error("test failed after all attempts", map[string]interface{}{
			"test":     test,
			"attempts": out.Attempts,
			"error":    err.Error(),
		})
	}
	return out
}

// attempt runs one invocation of the test runner with its own timeout.
func (c *Coordinator) attempt(ctx context.Context, test string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.TestTimeout)
	defer cancel()

	args := append([]string{test}, c.opts.RunnerArgs...)
	cmd := exec.CommandContext(attemptCtx, c.opts.Runner, args...)
	cmd.Dir = c.opts.ProjectRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded {
			return string(output), errors.New(errors.Timeout, "test attempt timed out", err)
		}
		return string(output), err
	}
	return string(output), nil
}

// record updates history for a settled test under the coordinator's lock.
func (c *Coordinator) record(out Outcome) {
	if c.recorder == nil {
		return
	}
	c.recordMu.Lock()
	defer c.recordMu.Unlock()
	if err := c.recorder.RecordRun(out.TestPath, out.Duration, out.Success, out.Output); err != nil {
		c.logger.Error("failed to record test history", map[string]interface{}{
			"test":  out.TestPath,
			"error": err.Error(),
		})
	}
}
