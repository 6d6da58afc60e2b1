package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFileFlag string

	ctx := newCommandContext(&envFileFlag)

	rootCmd := &cobra.Command{
		Use:           "avatargate",
		Short:         "Talking-avatar video generation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.loadEnvFile(cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx.configValue())
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Dotenv file loaded before reading AVATARGATE_* variables")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newVideosCommand(ctx))

	return rootCmd
}
