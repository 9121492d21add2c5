// Package history persists per-test execution records and the per-commit
// selection cache in a SQLite database under .tsel/history.db.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// Run is one recorded execution of a test file.
type Run struct {
	RunID      string
	ExecutedAt time.Time
	Duration   time.Duration
	Success    bool
	// Output holds the runner's combined output for failed runs,
	// empty for passing runs.
	Output string
}

// Record is the bounded per-test history: a ring buffer of the most recent
// runs plus derived counters.
type Record struct {
	TestPath string
	// Runs are ordered oldest to newest, at most the configured maximum.
	Runs []Run
	// RecentFailures counts failures within the trailing window.
	RecentFailures int
	// TotalRuns counts every run ever recorded, beyond the ring buffer.
	TotalRuns int
}

// AvgSeconds returns the mean duration of the retained runs, in seconds.
func (r *Record) AvgSeconds() float64 {
	if len(r.Runs) == 0 {
		return 30 // assume a middling test when nothing is known
	}
	var total time.Duration
	for _, run := range r.Runs {
		total += run.Duration
	}
	return total.Seconds() / float64(len(r.Runs))
}

// Options bound the store's retention.
type Options struct {
	MaxRunsPerTest int
	RecentWindow   int
}

func (o Options) withDefaults() Options {
	if o.MaxRunsPerTest <= 0 {
		o.MaxRunsPerTest = 20
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = 5
	}
	return o
}

// Store is the persistent history handle. Safe for concurrent writers:
// SQLite serializes under WAL with a busy timeout, and completing test
// workers record runs from multiple goroutines.
type Store struct {
	conn    *sql.DB
	opts    Options
	logger  *logging.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the history database under <projectRoot>/.tsel.
func Open(projectRoot string, opts Options, logger *logging.Logger) (*Store, error) {
	dir := filepath.Join(projectRoot, ".tsel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.HistoryStoreFailed, "failed to create .tsel directory", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, errors.New(errors.HistoryStoreFailed, "failed to open history database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.New(errors.HistoryStoreFailed, "failed to set pragma", err)
		}
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, errors.New(errors.InternalError, "failed to create zstd encoder", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, errors.New(errors.InternalError, "failed to create zstd decoder", err)
	}

	s := &Store{
		conn:    conn,
		opts:    opts.withDefaults(),
		logger:  logger.With(map[string]interface{}{"component": "history"}),
		encoder: encoder,
		decoder: decoder,
	}

	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the store. Called on normal exit and from the
// interrupt path; history must survive a failed or interrupted run.
func (s *Store) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return s.conn.Close()
}

// withTx executes fn inside a transaction, rolling back on error.
func (s *Store) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordRun appends a run to a test's ring buffer, bumps the lifetime
// counter, and prunes rows beyond the retention bound. Failure output is
// zstd-compressed before storage.
func (s *Store) RecordRun(testPath string, duration time.Duration, success bool, output string) error {
	var blob []byte
	if !success && output != "" {
		blob = s.encoder.EncodeAll([]byte(output), nil)
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO test_runs (run_id, test_path, executed_at, duration_ms, success, output)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), testPath, time.Now().UnixMilli(),
			duration.Milliseconds(), boolToInt(success), blob,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			`INSERT INTO test_stats (test_path, total_runs) VALUES (?, 1)
			 ON CONFLICT(test_path) DO UPDATE SET total_runs = total_runs + 1`,
			testPath,
		)
		if err != nil {
			return err
		}

		// Ring-buffer truncation: keep only the newest rows.
		_, err = tx.Exec(
			`DELETE FROM test_runs WHERE test_path = ? AND id NOT IN (
			   SELECT id FROM test_runs WHERE test_path = ?
			   ORDER BY id DESC LIMIT ?)`,
			testPath, testPath, s.opts.MaxRunsPerTest,
		)
		return err
	})
}

// Record returns the history record for a test, or nil when the test has
// never been recorded.
func (s *Store) Record(testPath string) *Record {
	rows, err := s.conn.Query(
		`SELECT run_id, executed_at, duration_ms, success, output
		 FROM test_runs WHERE test_path = ? ORDER BY id ASC`,
		testPath,
	)
	if err != nil {
		s.logger.Error("history query failed", map[string]interface{}{
			"test":  testPath,
			"error": err.Error(),
		})
		return nil
	}
	defer rows.Close()

	rec := &Record{TestPath: testPath}
	for rows.Next() {
		var run Run
		var executedAt, durationMs int64
		var success int
		var blob []byte
		if err := rows.Scan(&run.RunID, &executedAt, &durationMs, &success, &blob); err != nil {
			s.logger.Error("history row scan failed", map[string]interface{}{"error": err.Error()})
			return nil
		}
		run.ExecutedAt = time.UnixMilli(executedAt)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Success = success != 0
		if len(blob) > 0 {
			if raw, err := s.decoder.DecodeAll(blob, nil); err == nil {
				run.Output = string(raw)
			}
		}
		rec.Runs = append(rec.Runs, run)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("history query failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if len(rec.Runs) == 0 {
		return nil
	}

	window := s.opts.RecentWindow
	if window > len(rec.Runs) {
		window = len(rec.Runs)
	}
	for _, run := range rec.Runs[len(rec.Runs)-window:] {
		if !run.Success {
			rec.RecentFailures++
		}
	}

	if err := s.conn.QueryRow(
		`SELECT total_runs FROM test_stats WHERE test_path = ?`, testPath,
	).Scan(&rec.TotalRuns); err != nil {
		rec.TotalRuns = len(rec.Runs)
	}

	return rec
}

// TestPaths returns every test path with recorded history, sorted.
func (s *Store) TestPaths() ([]string, error) {
	rows, err := s.conn.Query(`SELECT test_path FROM test_stats ORDER BY test_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentlyFailing returns up to limit test paths with at least one failure
// in their recent window, for the oracle's history context.
func (s *Store) RecentlyFailing(limit int) []string {
	paths, err := s.TestPaths()
	if err != nil {
		return nil
	}
	out := make([]string, 0, limit)
	for _, p := range paths {
		if rec := s.Record(p); rec != nil && rec.RecentFailures > 0 {
			out = append(out, p)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// CachedSelection returns the opaque selection payload cached for a commit.
func (s *Store) CachedSelection(commit string) ([]byte, bool) {
	var blob []byte
	err := s.conn.QueryRow(
		`SELECT result FROM selection_cache WHERE commit_hash = ?`, commit,
	).Scan(&blob)
	if err != nil {
		return nil, false
	}
	raw, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// SaveSelection caches the selection payload for a commit.
func (s *Store) SaveSelection(commit string, payload []byte) error {
	blob := s.encoder.EncodeAll(payload, nil)
	_, err := s.conn.Exec(
		`INSERT INTO selection_cache (commit_hash, result, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(commit_hash) DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		commit, blob, time.Now().UnixMilli(),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
