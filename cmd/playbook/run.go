package main

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	runVarFile string
	runVars    []string
)

var runCmd = &cobra.Command{
	Use:   "run [runbook.toml]",
	Short: "Parse a runbook and execute every node in topological order",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runVarFile, "var-file", "", "variable file (toml/json/yaml/.env)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "variable override KEY=VALUE (repeatable)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rb, vars, err := loadRunbook(cfg, args[0], runVarFile, runVars)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := buildEngine(cfg, store)
	run, err := eng.StartRun(context.Background(), rb, vars)
	if run != nil {
		cmd.Printf("run %s#%d finished with status %s (ok=%d nok=%d skipped=%d)\n",
			run.WorkflowName, run.RunID, run.Status, run.NodesOK, run.NodesNOK, run.NodesSkipped)
	}
	return err
}
