package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vere/internal/config"
	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/observability"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/ship"
)

// PierFlags are the settings every pier-running command accepts. Each
// overrides the config file and environment only when set.
type PierFlags struct {
	Backend     string
	NoSync      bool
	MetricsAddr string
	Tty         bool
}

func (f *PierFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Backend, "backend", config.BackendSQLite, "event log backend (sqlite|pebble)")
	cmd.Flags().BoolVar(&f.NoSync, "no-sync", false, "do not fsync log commits (pebble only)")
	cmd.Flags().StringVar(&f.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&f.Tty, "tty", false, "read terminal input from stdin")
}

func (f *PierFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("backend") {
		cfg.Backend = f.Backend
	}
	if cmd.Flags().Changed("no-sync") {
		cfg.NoSync = f.NoSync
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = f.MetricsAddr
	}
}

// loadConfig layers defaults, the --config file and VERE_* variables,
// then points the result at dir.
func loadConfig(opts *RootOptions, dir string) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid environment", err)
	}
	if dir != "" {
		cfg.Dir = dir
	}
	if cfg.Dir == "" {
		return cfg, NewExitError(ExitCommandError, "pier directory is required")
	}
	return cfg, nil
}

func validateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return nil
}

// setupLogging installs a text slog handler on w.
func setupLogging(opts *RootOptions, w io.Writer) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func shipOptions(cmd *cobra.Command, flags *PierFlags) ship.Options {
	o := ship.Options{Out: cmd.OutOrStdout()}
	if flags.Tty {
		o.In = cmd.InOrStdin()
	}
	return o
}

func scryPrinter(w io.Writer) func(ir.Value, error) {
	return func(v ir.Value, err error) {
		if err != nil || v == nil {
			fmt.Fprintln(w, "~")
			return
		}
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			fmt.Fprintf(w, "%v\n", v)
			return
		}
		fmt.Fprintln(w, string(data))
	}
}

// runShip drives s until it exits, serving metrics if configured.
//
// The first SIGINT or SIGTERM asks the pier to exit gracefully; a second
// cancels it outright. SIGUSR1 logs the pier's status.
func runShip(cmd *cobra.Command, s *ship.Ship) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if addr := s.Config.MetricsAddr; addr != "" {
		observability.RegisterMetrics()
		srv := &http.Server{Addr: addr, Handler: observability.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	go func() {
		exiting := false
		for {
			select {
			case sig := <-sigChan:
				switch {
				case sig == syscall.SIGUSR1:
					st := s.Pier.Info()
					slog.Info("pier status",
						"state", st.State,
						"engine_eve", st.EngineEve,
						"durable", st.Durable,
						"gifts_pending", st.GiftsPending,
						"barriers", st.Barriers)
				case exiting:
					slog.Warn("received second signal, stopping now", "signal", sig)
					cancel()
					return
				default:
					slog.Info("received signal, shutting down", "signal", sig)
					exiting = true
					s.Exit()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	err := s.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return WrapExitError(ExitFailure, "pier interrupted", err)
	case pier.CodeOf(err) != "":
		return WrapExitError(ExitFailure, fmt.Sprintf("pier stopped [%s]", pier.CodeOf(err)), err)
	default:
		return WrapExitError(ExitFailure, "pier stopped", err)
	}
}
