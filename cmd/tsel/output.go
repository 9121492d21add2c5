package main

import (
	"fmt"
	"strings"
	"time"

	"tsel/internal/pipeline"
	"tsel/internal/runner"
	"tsel/internal/selection"
)

func printSelectionHuman(result selection.Result, info pipeline.Info) {
	var b strings.Builder

	b.WriteString("Test Selection\n")
	b.WriteString("──────────────────────────────────────────────\n\n")

	if info.CacheHit {
		fmt.Fprintf(&b, "Cached selection for commit %s\n\n", shortCommit(info.Commit))
	} else if info.NoChanges {
		b.WriteString("No changes detected.\n")
	} else {
		fmt.Fprintf(&b, "Changed files: %d\n", len(info.ChangedFiles))
		if len(info.Functions) > 0 {
			fmt.Fprintf(&b, "Changed functions: %s\n", strings.Join(info.Functions, ", "))
		}
		if len(info.Locators) > 0 {
			fmt.Fprintf(&b, "Changed locators: %s\n", strings.Join(info.Locators, ", "))
		}
		if len(info.Expanded) > 0 {
			fmt.Fprintf(&b, "Methods using changed locators: %s\n", strings.Join(info.Expanded, ", "))
		}
		if info.OracleStatus != "" {
			fmt.Fprintf(&b, "Oracle consulted: %s\n", info.OracleStatus)
		}
		b.WriteString("\n")
	}

	if len(result.Tests) == 0 {
		b.WriteString("No tests selected.\n")
		fmt.Print(b.String())
		return
	}

	fmt.Fprintf(&b, "Selected %d test file(s):\n", len(result.Tests))
	for _, t := range result.Tests {
		icon := "○"
		if t.Provenance == selection.Direct {
			icon = "●"
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", icon, t.Path, t.Provenance)
	}
	if result.Truncated > 0 {
		fmt.Fprintf(&b, "  ... %d candidate(s) dropped by the selection cap\n", result.Truncated)
	}

	fmt.Print(b.String())
}

func printOutcomesHuman(outcomes []runner.Outcome, ok bool) {
	var b strings.Builder

	b.WriteString("\nExecution Results\n")
	b.WriteString("──────────────────────────────────────────────\n")
	for _, out := range outcomes {
		status := "PASS"
		if !out.Success {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  %s %s (%d attempt(s), %s)\n",
			status, out.TestPath, out.Attempts, out.Duration.Round(time.Millisecond).String())
	}
	if ok {
		b.WriteString("\nAll selected tests passed.\n")
	} else {
		b.WriteString("\nAt least one selected test failed.\n")
	}

	fmt.Print(b.String())
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
