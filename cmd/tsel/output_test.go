package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tsel/internal/config"
	"tsel/internal/logging"
)

func TestShortCommit(t *testing.T) {
	cases := map[string]string{
		"0123456789abcdef0123456789abcdef01234567": "0123456789ab",
		"abc123": "abc123",
		"":       "",
	}
	for in, want := range cases {
		if got := shortCommit(in); got != want {
			t.Errorf("shortCommit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSmokeSelectionPicksFirstTest(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "tests")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	for _, name := range []string{"test_b.py", "test_a.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# test"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.ProjectRoot = root
	a := &app{cfg: cfg, logger: logging.Discard()}

	got := a.smokeSelection(context.Background())
	if len(got) != 1 || got[0] != "tests/test_a.py" {
		t.Errorf("Expected [tests/test_a.py], got %v", got)
	}
}

func TestSmokeSelectionEmptyCorpus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = t.TempDir()
	a := &app{cfg: cfg, logger: logging.Discard()}

	if got := a.smokeSelection(context.Background()); got != nil {
		t.Errorf("Expected nil for empty corpus, got %v", got)
	}
}
