// Package cli は rollcall コマンド（serve / migrate / sweep）
package cli

import (
	"github.com/spf13/cobra"

	"ROLLCALL-backend/internal/platform/config"
)

// RootOptions は全サブコマンド共通のフラグ
type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)
	cmd := &cobra.Command{
		Use:   "rollcall",
		Short: "ROLLCALL - attendance codes and absence compliance",
		Long: `ROLLCALL issues short-lived attendance codes for class sessions,
records student redemptions and teacher-marked absences, and keeps
warning / exclusion markers in line with the absence policy.

Without a subcommand it behaves like "rollcall serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to config.yaml")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	return cmd
}
