package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binge-hub/binge-hub/internal/logging"
	"github.com/binge-hub/binge-hub/internal/version"
)

func newCheckConfigCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(nil)
			if err != nil {
				return err
			}

			fields := logging.BaseFields("check_config", ctx.configPath)
			fields["lists"] = len(cfg.Catalog.ListIDs)
			fields["auth"] = cfg.Catalog.AuthMode()
			fields["cache_dir"] = cfg.Global.CacheDir
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		},
	}
}
