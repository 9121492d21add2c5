package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tsel/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .tsel/config.json",
	Run:   runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) {
	path := filepath.Join(projectRootFlag, ".tsel", "config.json")
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Config already exists at %s\n", path)
		os.Exit(exitFailure)
	}

	cfg := config.DefaultConfig()
	cfg.ProjectRoot = projectRootFlag
	if err := cfg.Save(projectRootFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(exitFailure)
	}
	fmt.Printf("Wrote %s\n", path)
}
