package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ROLLCALL-backend/internal/platform/db"
)

type MigrateOptions struct {
	*RootOptions
	StatusOnly bool
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded SQL migrations to MySQL",
		Long: `Apply the embedded goose migrations to the configured MySQL database.

Example:
  rollcall migrate --config config/config.yaml
  rollcall migrate --status`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.StatusOnly, "status", false, "print the current schema version without migrating")
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *MigrateOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireMySQL(cfg); err != nil {
		return err
	}

	conn, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to connect database", err)
	}
	defer conn.Close()

	if !opts.StatusOnly {
		logger.Info("applying migrations", "dbname", cfg.DB.DBName)
		if err := db.Migrate(ctx, conn); err != nil {
			return WrapExitError(ExitFailure, "migration failed", err)
		}
	}
	version, err := db.MigrationStatus(conn)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read schema version", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
