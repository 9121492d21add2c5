package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded per-test execution history",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "human", "Output format (human, json)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	defer a.close()

	if a.store == nil {
		fmt.Println("History is disabled or unavailable.")
		return
	}

	paths, err := a.store.TestPaths()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
		os.Exit(exitFailure)
	}

	if historyFormat == "json" {
		type entry struct {
			TestPath       string  `json:"testPath"`
			TotalRuns      int     `json:"totalRuns"`
			RecentFailures int     `json:"recentFailures"`
			AvgSeconds     float64 `json:"avgSeconds"`
		}
		entries := make([]entry, 0, len(paths))
		for _, p := range paths {
			if rec := a.store.Record(p); rec != nil {
				entries = append(entries, entry{
					TestPath:       rec.TestPath,
					TotalRuns:      rec.TotalRuns,
					RecentFailures: rec.RecentFailures,
					AvgSeconds:     rec.AvgSeconds(),
				})
			}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Println(string(data))
		return
	}

	var b strings.Builder
	b.WriteString("Test History\n")
	b.WriteString("──────────────────────────────────────────────\n")
	if len(paths) == 0 {
		b.WriteString("No recorded runs.\n")
	}
	for _, p := range paths {
		rec := a.store.Record(p)
		if rec == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s: %d run(s), %d recent failure(s), avg %.1fs\n",
			rec.TestPath, rec.TotalRuns, rec.RecentFailures, rec.AvgSeconds())
	}
	fmt.Print(b.String())
}
