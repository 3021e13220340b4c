package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YatsauAliaksei/openapi-mcp/registry"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load every configured service and fail on the first problem",
		Long: `Validate loads the configuration, fetches every document and compiles its
tools. Unlike serve, a service that cannot be loaded fails the command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, r, logger, err := setup(cmd.Context(), *configPath, registry.Options{Strict: true})
			if logger != nil {
				defer func() { _ = logger.Sync() }()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tools from %d services\n", r.Len(), len(cfg.Services))
			return nil
		},
	}
}
