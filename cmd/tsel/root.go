package main

import (
	"github.com/spf13/cobra"

	"tsel/internal/version"
)

var (
	// projectRootFlag is the CLI --project-root flag value
	projectRootFlag string
	// baseFlag overrides the comparison ref for change detection
	baseFlag string
)

var rootCmd = &cobra.Command{
	Use:   "tsel",
	Short: "tsel - impact-based test selector",
	Long: `tsel analyzes version-control changes to decide which automated tests are
worth re-running: it extracts changed functions and locator constants from
diffs, maps them to test files by static usage analysis, and falls back to an
LLM suggestion service when static analysis is inconclusive. Suggestions are
always validated against the real test corpus before execution.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("tsel version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&projectRootFlag, "project-root", ".",
		"Root directory of the project under analysis")
	rootCmd.PersistentFlags().StringVar(&baseFlag, "base", "",
		"Comparison ref for change detection (default: auto-resolved)")
}
