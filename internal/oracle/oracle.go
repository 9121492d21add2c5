// Package oracle queries the external LLM suggestion service when static
// matching is inconclusive. The service is advisory and untrusted: its
// output never reaches execution without corpus validation.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"tsel/internal/errors"
	"tsel/internal/logging"
)

// Status tags the outcome of a suggestion query.
type Status string

const (
	// OK means the service answered and at least the parse succeeded.
	OK Status = "ok"
	// Unavailable means the service could not be reached in time.
	Unavailable Status = "unavailable"
	// Malformed means the service answered with an unusable body.
	Malformed Status = "malformed"
)

// Suggestion is the validated result of one oracle query. Paths contains
// only corpus members; every variant degrades to an empty path list so the
// pipeline stays usable entirely offline.
type Suggestion struct {
	Status Status
	Paths  []string
}

// Request carries the analysis context embedded into the prompt.
type Request struct {
	ChangedFiles []string
	Functions    []string
	Locators     []string
	// Diffs maps changed file to its unified diff text; each entry is
	// truncated to MaxDiffChars before prompting.
	Diffs map[string]string
	// Corpus is the exhaustive list of valid test paths.
	Corpus []string
	// RecentFailures is historical context: tests failing lately get
	// flagged as higher priority in the prompt.
	RecentFailures []string
}

// Options configure the client; zero values fall back to sane bounds.
type Options struct {
	URL            string
	Model          string
	Timeout        time.Duration
	MaxSuggestions int
	MaxDiffChars   int
	FuzzyCutoff    float64
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = "http://localhost:11434/api/generate"
	}
	if o.Model == "" {
		o.Model = "mistral"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = 5
	}
	if o.MaxDiffChars <= 0 {
		o.MaxDiffChars = 1000
	}
	if o.FuzzyCutoff <= 0 {
		o.FuzzyCutoff = 0.5
	}
	return o
}

// Client talks to an Ollama-style generate endpoint.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *logging.Logger
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// statusError marks a completed HTTP exchange with a non-2xx status. The
// service answered definitively, so these are not retried; only transport
// errors are.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("suggestion service returned status %d", e.code)
}

// NewClient creates an oracle client.
func NewClient(opts Options, logger *logging.Logger) *Client {
	opts = opts.withDefaults()
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		opts:       opts,
		logger:     logger.With(map[string]interface{}{"component": "oracle"}),
	}
}

// Suggest queries the suggestion service and returns validated test paths.
// Transport failures retry once with backoff, then degrade to Unavailable;
// unusable bodies degrade to Malformed. Neither outcome is an error.
func (c *Client) Suggest(ctx context.Context, req Request) Suggestion {
	prompt := c.buildPrompt(req)

	var raw string
	err := retry.Do(
		func() error {
			var qErr error
			raw, qErr = c.query(ctx, prompt)
			return qErr
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, definitive := err.(*statusError)
			return !definitive
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("suggestion request retrying", map[string]interface{}{
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		selErr := errors.New(errors.OracleUnavailable, "suggestion service unavailable", err)
		c.logger.Warn("degrading to empty suggestion", map[string]interface{}{
			"error": selErr.Error(),
		})
		return Suggestion{Status: Unavailable}
	}

	var resp generateResponse
	if jsonErr := json.Unmarshal([]byte(raw), &resp); jsonErr != nil {
		selErr := errors.New(errors.OracleMalformed, "suggestion response malformed", jsonErr)
		c.logger.Warn("degrading to empty suggestion", map[string]interface{}{
			"error": selErr.Error(),
		})
		return Suggestion{Status: Malformed}
	}

	paths := c.validate(resp.Response, req.Corpus)
	c.logger.Info("oracle suggestion accepted", map[string]interface{}{
		"suggested": len(paths),
	})
	return Suggestion{Status: OK, Paths: paths}
}

func (c *Client) query(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.opts.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", &statusError{code: httpResp.StatusCode}
	}
	return string(raw), nil
}

func (c *Client) buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are an expert test selector for a Python test automation framework.\n")
	b.WriteString("Analyze the code changes and select the most relevant tests with high precision.\n\n")

	b.WriteString("Changed files:\n")
	for _, f := range req.ChangedFiles {
		fmt.Fprintf(&b, "  %s\n", f)
	}

	if len(req.Functions) > 0 {
		b.WriteString("\nChanged methods/functions:\n")
		for _, fn := range req.Functions {
			fmt.Fprintf(&b, "  %s\n", fn)
		}
	}
	if len(req.Locators) > 0 {
		b.WriteString("\nChanged locator constants:\n")
		for _, l := range req.Locators {
			fmt.Fprintf(&b, "  %s\n", l)
		}
	}

	if len(req.Diffs) > 0 {
		b.WriteString("\nDiffs (truncated):\n")
		for _, f := range req.ChangedFiles {
			diff, ok := req.Diffs[f]
			if !ok || diff == "" {
				continue
			}
			if len(diff) > c.opts.MaxDiffChars {
				diff = diff[:c.opts.MaxDiffChars]
			}
			fmt.Fprintf(&b, "File: %s\n%s\n", f, diff)
		}
	}

	b.WriteString("\nAvailable test files in repository:\n")
	for _, t := range req.Corpus {
		fmt.Fprintf(&b, "  %s\n", t)
	}

	if len(req.RecentFailures) > 0 {
		fmt.Fprintf(&b, "\nRecently failed tests (higher priority): %s\n",
			strings.Join(req.RecentFailures, ", "))
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("1. Only output test files that EXACTLY match paths from the available list.\n")
	b.WriteString("2. Do not output paths that are not in the list.\n")
	fmt.Fprintf(&b, "3. Maximum %d test files unless changes are extensive.\n", c.opts.MaxSuggestions)
	b.WriteString("4. One file path per line, no extra text, no markdown formatting.\n")

	return b.String()
}
