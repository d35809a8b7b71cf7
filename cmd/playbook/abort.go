package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/errs"
)

var abortCmd = &cobra.Command{
	Use:   "abort [workflow_name] [run_id]",
	Short: "Force-transition a run to ABORTED",
	Args:  cobra.ExactArgs(2),
	RunE:  runAbort,
}

func runAbort(cmd *cobra.Command, args []string) error {
	workflowName := args[0]
	runID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid run id %q", args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	run, err := store.GetRun(ctx, workflowName, runID)
	if err != nil {
		return err
	}

	eng := buildEngine(cfg, store)
	if err := eng.Abort(ctx, run); err != nil {
		return err
	}
	cmd.Printf("run %s#%d aborted\n", run.WorkflowName, run.RunID)
	return nil
}
