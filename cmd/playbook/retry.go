package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/errs"
)

var (
	retryVarFile string
	retryVars    []string
)

var retryCmd = &cobra.Command{
	Use:   "retry [runbook.toml] [run_id] [node_id]",
	Short: "Run a fresh attempt of one node within an existing run",
	Args:  cobra.ExactArgs(3),
	RunE:  runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryVarFile, "var-file", "", "variable file (toml/json/yaml/.env)")
	retryCmd.Flags().StringArrayVar(&retryVars, "var", nil, "variable override KEY=VALUE (repeatable)")
}

func runRetry(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid run id %q", args[1])
	}
	nodeID := args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rb, vars, err := loadRunbook(cfg, args[0], retryVarFile, retryVars)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(context.Background(), rb.Title, runID)
	if err != nil {
		return err
	}

	eng := buildEngine(cfg, store)
	if err := eng.Retry(context.Background(), rb, run, nodeID, vars); err != nil {
		return err
	}
	cmd.Printf("run %s#%d now %s (ok=%d nok=%d skipped=%d)\n",
		run.WorkflowName, run.RunID, run.Status, run.NodesOK, run.NodesNOK, run.NodesSkipped)
	return nil
}
