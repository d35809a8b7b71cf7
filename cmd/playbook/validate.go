package main

import (
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/playbook/internal/domain"
)

var (
	validateVarFile string
	validateVars    []string
)

var validateCmd = &cobra.Command{
	Use:   "validate [runbook.toml]",
	Short: "Parse and validate a runbook without executing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateVarFile, "var-file", "", "variable file (toml/json/yaml/.env)")
	validateCmd.Flags().StringArrayVar(&validateVars, "var", nil, "variable override KEY=VALUE (repeatable)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rb, _, err := loadRunbook(cfg, args[0], validateVarFile, validateVars)
	if err != nil {
		return err
	}
	order, err := domain.TopologicalOrder(rb)
	if err != nil {
		return err
	}
	cmd.Printf("%s is valid (%d nodes)\n", rb.Title, len(order))
	return nil
}
