package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"tsel/internal/logging"
)

var testCorpus = []string{
	"tests/test_checkout.py",
	"tests/test_login.py",
	"tests/test_orders.py",
	"tests/test_payment.py",
	"tests/test_profile.py",
	"tests/test_search.py",
}

func newTestClient(opts Options) *Client {
	return NewClient(opts, logging.Discard())
}

func TestValidateExactMatches(t *testing.T) {
	c := newTestClient(Options{})
	got := c.validate("tests/test_login.py\ntests/test_orders.py\n", testCorpus)

	want := []string{"tests/test_login.py", "tests/test_orders.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestValidateCleansDecoration(t *testing.T) {
	c := newTestClient(Options{})
	output := "- `tests/test_login.py`\n* \"tests/test_orders.py\"\n  ./tests/test_payment.py  \n"
	got := c.validate(output, testCorpus)

	want := []string{"tests/test_login.py", "tests/test_orders.py", "tests/test_payment.py"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestValidateFuzzyMapsNearMisses(t *testing.T) {
	c := newTestClient(Options{FuzzyCutoff: 0.5})
	got := c.validate("test/login_test.py\n", testCorpus)

	if !reflect.DeepEqual(got, []string{"tests/test_login.py"}) {
		t.Errorf("Expected fuzzy mapping to tests/test_login.py, got %v", got)
	}
}

func TestValidateDiscardsNonPaths(t *testing.T) {
	c := newTestClient(Options{})
	output := "Sure! Here are the most relevant automated regression suites I recommend\n\n"
	if got := c.validate(output, testCorpus); len(got) != 0 {
		t.Errorf("Expected chatter to be discarded, got %v", got)
	}
}

func TestValidateRejectsTraversal(t *testing.T) {
	c := newTestClient(Options{})
	if got := c.validate("../../etc/passwd\n", testCorpus); len(got) != 0 {
		t.Errorf("Expected traversal path to be rejected, got %v", got)
	}
}

func TestValidateDeduplicatesAndCaps(t *testing.T) {
	c := newTestClient(Options{MaxSuggestions: 3})
	output := "tests/test_login.py\ntests/test_login.py\ntests/test_orders.py\n" +
		"tests/test_payment.py\ntests/test_search.py\n"
	got := c.validate(output, testCorpus)

	if len(got) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d: %v", len(got), got)
	}
	if got[0] != "tests/test_login.py" || got[1] != "tests/test_orders.py" {
		t.Errorf("Unexpected suggestion order: %v", got)
	}
}

func TestSuggestValidatedPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected stream to be disabled")
		}
		json.NewEncoder(w).Encode(generateResponse{
			Response: "tests/test_login.py\ntests/test_fake.py of course!\n",
		})
	}))
	defer server.Close()

	c := newTestClient(Options{URL: server.URL})
	got := c.Suggest(context.Background(), Request{
		ChangedFiles: []string{"pages/login.py"},
		Functions:    []string{"login"},
		Corpus:       testCorpus,
	})

	if got.Status != OK {
		t.Fatalf("Expected status ok, got %s", got.Status)
	}
	if len(got.Paths) == 0 || got.Paths[0] != "tests/test_login.py" {
		t.Errorf("Expected validated path tests/test_login.py first, got %v", got.Paths)
	}
}

func TestSuggestServiceDown(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.WarnLevel,
		Output: &buf,
	})
	c := NewClient(Options{URL: server.URL}, logger)
	got := c.Suggest(context.Background(), Request{Corpus: testCorpus})

	if got.Status != Unavailable {
		t.Errorf("Expected status unavailable, got %s", got.Status)
	}
	if len(got.Paths) != 0 {
		t.Errorf("Expected no paths from unavailable service, got %v", got.Paths)
	}
	// A definitive HTTP status is not a transport error and is not retried.
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("Expected exactly 1 request for a status error, got %d", n)
	}
	if !strings.Contains(buf.String(), "ORACLE_UNAVAILABLE") {
		t.Errorf("Expected ORACLE_UNAVAILABLE in log, got %q", buf.String())
	}
}

func TestSuggestTransportErrorRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	c := newTestClient(Options{URL: server.URL})
	got := c.Suggest(context.Background(), Request{Corpus: testCorpus})

	if got.Status != Unavailable {
		t.Errorf("Expected status unavailable after transport retries, got %s", got.Status)
	}
}

func TestSuggestMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.WarnLevel,
		Output: &buf,
	})
	c := NewClient(Options{URL: server.URL}, logger)
	got := c.Suggest(context.Background(), Request{Corpus: testCorpus})

	if got.Status != Malformed {
		t.Errorf("Expected status malformed, got %s", got.Status)
	}
	if !strings.Contains(buf.String(), "ORACLE_MALFORMED") {
		t.Errorf("Expected ORACLE_MALFORMED in log, got %q", buf.String())
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	c := newTestClient(Options{MaxDiffChars: 10, MaxSuggestions: 5})
	prompt := c.buildPrompt(Request{
		ChangedFiles:   []string{"pages/orders.py"},
		Functions:      []string{"submit_order"},
		Locators:       []string{"SUBMIT_BUTTON_LOCATOR"},
		Diffs:          map[string]string{"pages/orders.py": "0123456789ABCDEF"},
		Corpus:         testCorpus,
		RecentFailures: []string{"tests/test_orders.py"},
	})

	for _, want := range []string{
		"pages/orders.py",
		"submit_order",
		"SUBMIT_BUTTON_LOCATOR",
		"tests/test_orders.py",
		"RULES",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
	if strings.Contains(prompt, "ABCDEF") {
		t.Error("Expected diff to be truncated in prompt")
	}
}
