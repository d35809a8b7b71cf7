package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [workflow_name] [run_id]",
	Short: "List recorded runs of a workflow, or a single run's node attempts",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
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
	workflowName := args[0]

	if len(args) == 1 {
		runs, err := store.ListRuns(ctx, workflowName)
		if err != nil {
			return err
		}
		for _, r := range runs {
			cmd.Printf("run #%d  %-8s  started %s  ok=%d nok=%d skipped=%d\n",
				r.RunID, r.Status, r.StartTime.Format("2006-01-02T15:04:05"), r.NodesOK, r.NodesNOK, r.NodesSkipped)
		}
		return nil
	}

	var runID int64
	if _, err := fmt.Sscanf(args[1], "%d", &runID); err != nil {
		return fmt.Errorf("invalid run id %q", args[1])
	}
	execs, err := store.ListExecutions(ctx, workflowName, runID)
	if err != nil {
		return err
	}
	for _, e := range execs {
		cmd.Printf("%-20s attempt %d  %-8s  exit=%v  %s\n", e.NodeID, e.Attempt, e.Status, e.ExitCode, e.Exception)
	}
	return nil
}
