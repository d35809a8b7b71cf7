// Command playbook parses, validates and executes TOML runbook documents
// (§1/§6): run, resume, validate, show, retry, skip and abort subcommands
// over a SQLite-backed run history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/errs"
)

var rootCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Runbook execution engine",
	Long:  "playbook — parses TOML runbook documents into a node DAG and executes them with retry, skip and abort controls.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error's taxonomy kind to the process exit code of §6:
// 0 success, 1 parse/validation/execution errors, 2 configuration errors,
// 3 persistence errors.
func exitCodeFor(err error) int {
	switch {
	case errs.Is(err, errs.KindConfiguration):
		return 2
	case errs.Is(err, errs.KindPersistence):
		return 3
	default:
		return 1
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(abortCmd)
}
