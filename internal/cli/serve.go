package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"ROLLCALL-backend/internal/server"
)

type ServeOptions struct {
	*RootOptions
	ShutdownTimeout time.Duration
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

With database.driver=memory the server runs against an in-process store,
optionally seeded from the file named by "seed" (dev mode only).

Example:
  rollcall serve --config config/config.yaml
  ROLLCALL_DB_DRIVER=memory ROLLCALL_SEED=config/seed.example.yaml rollcall serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown deadline")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	e, err := openEnv(parent, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.close()

	if e.cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	e.logger.Info("starting", "mode", e.cfg.Mode, "version", e.cfg.Version, "driver", e.cfg.DB.Driver)

	svcs := server.NewServices(e.cfg, e.store, e.logger, server.Overrides{})
	r, err := server.NewRouter(e.cfg, e.store, svcs, e.logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build router", err)
	}

	srv := &http.Server{
		Addr:              e.cfg.Server.Addr,
		Handler:           r,
		ReadTimeout:       e.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      e.cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		var err error
		if e.cfg.Server.TLS() {
			e.logger.Info("listening (TLS)", "addr", srv.Addr)
			err = srv.ListenAndServeTLS(e.cfg.Server.TLSCert, e.cfg.Server.TLSKey)
		} else {
			e.logger.Info("listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	e.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	e.logger.Info("server stopped gracefully")
	return nil
}
