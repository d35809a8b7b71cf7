package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/errs"
)

var (
	resumeVarFile   string
	resumeVars      []string
	resumeStartNode string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [runbook.toml] [run_id]",
	Short: "Resume a RUNNING or ABORTED run from its first unfinished node",
	Args:  cobra.ExactArgs(2),
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeVarFile, "var-file", "", "variable file (toml/json/yaml/.env)")
	resumeCmd.Flags().StringArrayVar(&resumeVars, "var", nil, "variable override KEY=VALUE (repeatable)")
	resumeCmd.Flags().StringVar(&resumeStartNode, "from", "", "node id to resume from, overriding automatic selection")
}

func runResume(cmd *cobra.Command, args []string) error {
	runID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err, "invalid run id %q", args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rb, vars, err := loadRunbook(cfg, args[0], resumeVarFile, resumeVars)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := buildEngine(cfg, store)
	var startNode *string
	if resumeStartNode != "" {
		startNode = &resumeStartNode
	}
	run, err := eng.ResumeRun(context.Background(), rb, runID, vars, startNode)
	if run != nil {
		cmd.Printf("run %s#%d finished with status %s (ok=%d nok=%d skipped=%d)\n",
			run.WorkflowName, run.RunID, run.Status, run.NodesOK, run.NodesNOK, run.NodesSkipped)
	}
	return err
}
