package main

import (
	"context"
	"fmt"
	"time"

	"tsel/internal/config"
	"tsel/internal/corpus"
	"tsel/internal/delta"
	"tsel/internal/gitio"
	"tsel/internal/history"
	"tsel/internal/logging"
	"tsel/internal/match"
	"tsel/internal/oracle"
	"tsel/internal/pipeline"
	"tsel/internal/pysrc"
	"tsel/internal/usage"
)

// Exit codes. Interrupt gets its own code so CI can tell an aborted run
// from a failed one.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 2
)

// app holds the process-scoped objects every command needs.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *history.Store
}

// newApp loads configuration, builds the logger, and opens the history
// store. Callers must call close, including on interrupt paths.
func newApp() (*app, error) {
	cfg, err := config.Load(projectRootFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.Level(cfg.Logging.Level),
	})

	a := &app{cfg: cfg, logger: logger}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.ProjectRoot, history.Options{
			MaxRunsPerTest: cfg.History.MaxRunsPerTest,
			RecentWindow:   cfg.History.RecentWindow,
		}, logger)
		if err != nil {
			// History is an enhancement; selection works without it.
			logger.Warn("history store unavailable, continuing without it", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			a.store = store
		}
	}

	return a, nil
}

// close flushes persistent state. Safe to call more than once is not
// required; commands call it exactly once per path.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close history store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// newPipeline wires the selection phases from configuration.
func (a *app) newPipeline() (*pipeline.Pipeline, error) {
	cfg := a.cfg

	source := gitio.NewSource(
		cfg.ProjectRoot,
		time.Duration(cfg.Analysis.GitTimeoutMs)*time.Millisecond,
		cfg.Corpus.IgnorePaths,
		a.logger,
	)

	parser, err := pysrc.NewSpanParser(cfg.Analysis.Parser)
	if err != nil {
		return nil, err
	}

	lister := func(ctx context.Context) ([]string, error) {
		return corpus.List(cfg.ProjectRoot, cfg.Corpus.TestRoot, cfg.Corpus.TestGlob)
	}

	var suggester pipeline.SuggestionClient
	if cfg.Oracle.Enabled {
		suggester = oracle.NewClient(oracle.Options{
			URL:            cfg.Oracle.URL,
			Model:          cfg.Oracle.Model,
			Timeout:        time.Duration(cfg.Oracle.TimeoutMs) * time.Millisecond,
			MaxSuggestions: cfg.Oracle.MaxSuggestions,
			MaxDiffChars:   cfg.Oracle.MaxDiffChars,
			FuzzyCutoff:    cfg.Oracle.FuzzyCutoff,
		}, a.logger)
	}

	var store pipeline.HistoryStore
	if a.store != nil {
		store = a.store
	}

	return pipeline.New(
		cfg,
		source,
		delta.NewExtractor(cfg.Analysis.LocatorSuffix, a.logger),
		usage.NewIndexer(parser, a.logger),
		lister,
		match.NewMatcher(cfg.ProjectRoot, a.logger),
		suggester,
		store,
		a.logger,
	), nil
}
