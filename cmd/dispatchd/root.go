package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Swind/go-dispatch/internal/config"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dispatchd",
		Short:         "Work-dispatch runtime daemon",
		Long:          "dispatchd runs a dispatcher with a demo pipeline and exposes its metrics.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			once, _ := cmd.Flags().GetBool("once")
			return runDaemon(cmd.Context(), cfg, once)
		},
	}
	config.RegisterFlags(run.Flags())
	run.Flags().Bool("once", false, "exit after one demo run instead of waiting for a signal")
	root.AddCommand(run)

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}
