package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/errs"
)

var (
	skipVarFile string
	skipVars    []string
)

var skipCmd = &cobra.Command{
	Use:   "skip [runbook.toml] [run_id] [node_id]",
	Short: "Mutate a failed node's latest attempt to SKIPPED and re-aggregate",
	Args:  cobra.ExactArgs(3),
	RunE:  runSkip,
}

func init() {
	skipCmd.Flags().StringVar(&skipVarFile, "var-file", "", "variable file (toml/json/yaml/.env)")
	skipCmd.Flags().StringArrayVar(&skipVars, "var", nil, "variable override KEY=VALUE (repeatable)")
}

func runSkip(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid run id %q", args[1])
	}
	nodeID := args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rb, _, err := loadRunbook(cfg, args[0], skipVarFile, skipVars)
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
	if err := eng.SkipLatest(context.Background(), rb, run, nodeID); err != nil {
		return err
	}
	cmd.Printf("run %s#%d now %s (ok=%d nok=%d skipped=%d)\n",
		run.WorkflowName, run.RunID, run.Status, run.NodesOK, run.NodesNOK, run.NodesSkipped)
	return nil
}
