package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	selectFormat string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Analyze changes and print the test selection without executing",
	Long: `Run the analysis pipeline and report which tests would be selected.

Examples:
  tsel select                   # Human-readable selection report
  tsel select --format=list     # Just file paths (for piping into a runner)
  tsel select --format=json     # Machine-readable selection with reasons`,
	Run: runSelect,
}

func init() {
	selectCmd.Flags().StringVar(&selectFormat, "format", "human", "Output format (human, json, list)")
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	defer a.close()

	pipe, err := a.newPipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}

	result, info, err := pipe.Select(context.Background(), baseFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting tests: %v\n", err)
		os.Exit(exitFailure)
	}

	switch selectFormat {
	case "list":
		for _, path := range result.Paths() {
			fmt.Println(path)
		}
	case "json":
		out := struct {
			Tests     interface{} `json:"tests"`
			Truncated int         `json:"truncated,omitempty"`
			Info      interface{} `json:"info"`
		}{result.Tests, result.Truncated, info}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
			os.Exit(exitFailure)
		}
		fmt.Println(string(data))
	default:
		printSelectionHuman(result, info)
	}
}
