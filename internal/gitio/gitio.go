// Package gitio queries the version-control system for changed files and
// unified diffs. Every query is timeout-bounded and degrades to an empty
// result rather than aborting the pipeline.
package gitio

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// DefaultQueryTimeout bounds every git invocation.
const DefaultQueryTimeout = 30 * time.Second

// Status describes the outcome of a changed-files query.
type Status string

const (
	// StatusOK means the query produced a usable (possibly empty) result.
	StatusOK Status = "ok"
	// StatusDetached means HEAD is detached with no comparable base;
	// the change set is empty but distinguishable from "no changes".
	StatusDetached Status = "detached"
	// StatusError means the VCS query failed; the pipeline continues
	// with an empty change set.
	StatusError Status = "error"
)

// ChangeSet is the ordered, deduplicated set of repo-relative changed paths.
type ChangeSet struct {
	Files  []string
	Base   string // the resolved comparison ref
	Status Status
}

// Source answers "what changed" queries against a git repository.
type Source struct {
	repoRoot    string
	timeout     time.Duration
	ignorePaths []string
	logger      *logging.Logger
}

// NewSource creates a diff source rooted at repoRoot. ignorePaths entries
// are matched as prefixes when they end in '/' and as suffixes otherwise.
func NewSource(repoRoot string, timeout time.Duration, ignorePaths []string, logger *logging.Logger) *Source {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Source{
		repoRoot:    repoRoot,
		timeout:     timeout,
		ignorePaths: ignorePaths,
		logger:      logger.With(map[string]interface{}{"component": "gitio"}),
	}
}

// IsAvailable reports whether git works inside the repo root.
func (s *Source) IsAvailable(ctx context.Context) bool {
	_, err := s.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Head returns the current commit hash, used as the selection-cache key.
func (s *Source) Head(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", errors.New(errors.VCSCommandFailed, "failed to resolve HEAD", err)
	}
	return out, nil
}

// ChangedFiles returns the set of files changed between the resolved base
// ref and HEAD. Base resolution order: explicit override, CI base branch,
// upstream tracking ref, previous commit. VCS failures yield an empty set
// with StatusError; a detached HEAD with no previous commit yields
// StatusDetached.
func (s *Source) ChangedFiles(ctx context.Context, baseOverride string) ChangeSet {
	base := baseOverride
	if base == "" {
		base = s.resolveBase(ctx)
	}
	if base == "" {
		s.logger.Warn("no comparable base ref; reporting empty change set", nil)
		return ChangeSet{Status: StatusDetached}
	}

	out, err := s.run(ctx, "diff", "--name-only", base)
	if err != nil {
		s.logger.Error("changed-files query failed", map[string]interface{}{
			"base":  base,
			"error": err.Error(),
		})
		return ChangeSet{Base: base, Status: StatusError}
	}

	seen := make(map[string]bool)
	files := make([]string, 0)
	for _, line := range strings.Split(out, "\n") {
		f := strings.TrimSpace(line)
		if f == "" || seen[f] || s.ignored(f) {
			continue
		}
		seen[f] = true
		files = append(files, f)
	}

	return ChangeSet{Files: files, Base: base, Status: StatusOK}
}

// Diff returns the unified diff for a single file between the base ref and
// HEAD/working tree. Failures yield empty diff text, never an error: an
// unparsable file simply contributes no symbol deltas.
func (s *Source) Diff(ctx context.Context, base, file string) string {
	if base == "" {
		base = "HEAD~1"
	}
	out, err := s.run(ctx, "diff", base, "--", file)
	if err != nil {
		s.logger.Error("diff query failed", map[string]interface{}{
			"file":  file,
			"error": err.Error(),
		})
		return ""
	}
	return out
}

// resolveBase picks the comparison ref. In CI the base branch of the pull
// request wins; locally the upstream tracking ref wins; otherwise compare
// against the previous commit when one exists.
func (s *Source) resolveBase(ctx context.Context) string {
	if strings.EqualFold(os.Getenv("GITHUB_ACTIONS"), "true") {
		baseBranch := os.Getenv("GITHUB_BASE_REF")
		if baseBranch == "" {
			baseBranch = "main"
		}
		return "origin/" + baseBranch + "...HEAD"
	}

	if upstream, err := s.run(ctx, "rev-parse", "--abbrev-ref", "@{u}"); err == nil && upstream != "" {
		return "@{u}...HEAD"
	}

	// No upstream. Fall back to the previous commit, which does not exist
	// on a fresh repository or an orphan/detached first commit.
	if _, err := s.run(ctx, "rev-parse", "--verify", "HEAD~1"); err != nil {
		return ""
	}
	s.logger.Debug("no upstream branch; comparing against previous commit", nil)
	return "HEAD~1"
}

func (s *Source) ignored(path string) bool {
	for _, pat := range s.ignorePaths {
		if strings.HasSuffix(pat, "/") {
			if strings.HasPrefix(path, pat) {
				return true
			}
		} else if strings.HasSuffix(path, pat) {
			return true
		}
	}
	return false
}

// run executes a git command with the configured timeout and returns
// trimmed stdout.
func (s *Source) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoRoot

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.New(errors.Timeout, "git command timed out", err).
				WithDetails(map[string]interface{}{"args": args})
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", errors.New(errors.VCSCommandFailed, "git command failed", err).
				WithDetails(map[string]interface{}{
					"args":   args,
					"stderr": strings.TrimSpace(string(exitErr.Stderr)),
				})
		}
		return "", errors.New(errors.VCSUnavailable, "failed to execute git", err)
	}

	return strings.TrimSpace(string(output)), nil
}
