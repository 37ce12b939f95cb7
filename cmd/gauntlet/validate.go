package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and catalogs without calling any provider",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	cases, err := loadCases(casesFile)
	if err != nil {
		return err
	}
	targets, err := loadTargets(targetsFile)
	if err != nil {
		return err
	}

	// Cross-check that every target names a configured provider.
	for _, target := range targets {
		if _, ok := cfg.LLM.Providers[target.Provider]; !ok {
			return fmt.Errorf("target %s references unconfigured provider %q", target.ID, target.Provider)
		}
	}

	fmt.Printf("OK: %d providers, %d test cases, %d targets\n",
		len(cfg.LLM.Providers), len(cases), len(targets))
	return nil
}
