package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ROLLCALL-backend/internal/server"
	"ROLLCALL-backend/internal/sessions"
)

type SweepOptions struct {
	*RootOptions
	JSON bool
}

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark expired Active sessions as Completed",
		Long: `Mark every Active session whose expiration time has passed as Completed.

Redemption already rejects expired codes by comparing times, so this only
tidies session listings. The codes stay attached to their sessions and are
reused by new sessions as needed. Run it from cron if you want that.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the result as JSON")
	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()

	svcs := server.NewServices(e.cfg, e.store, e.logger, server.Overrides{})
	res, err := svcs.Sessions.Sweep(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sweep failed", err)
	}
	return printSweep(cmd, opts, res)
}

func printSweep(cmd *cobra.Command, opts *SweepOptions, res sessions.SweepResult) error {
	out := cmd.OutOrStdout()
	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "closed %d session(s)\n", len(res.Closed))
	for _, id := range res.Closed {
		fmt.Fprintln(out, "  "+id)
	}
	return nil
}
