package main

import (
	"github.com/spf13/cobra"
)

// skipConfigAnnotation 标记无需加载配置的子命令。
const skipConfigAnnotation = "skipConfigLoad"

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "binge-hub",
		Short:         "Movie catalog cache and rating service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(dotEnvFile); err != nil {
				return err
			}
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 "+envConfigPath+" 覆盖）")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newListsCommand(ctx))
	rootCmd.AddCommand(newGenresCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newRateCommand(ctx))
	rootCmd.AddCommand(newCheckConfigCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
