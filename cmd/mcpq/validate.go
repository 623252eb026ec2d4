package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcpq/internal/infra/config"
)

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var printNormalized bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(logger)
			cfg, err := loader.Load(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}
			if printNormalized {
				rendered, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("render config: %w", err)
				}
				cmd.Print(string(rendered))
				return nil
			}
			cmd.Printf("%s: ok (%d tool policies)\n", opts.configPath, len(cfg.Tools))
			return nil
		},
	}

	cmd.Flags().BoolVar(&printNormalized, "print", false, "print the normalized config as YAML")
	return cmd
}
