package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/vere/internal/drivers"
	"github.com/roach88/vere/internal/ship"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	PierFlags

	Inject         string
	Scry           string
	Exit           bool
	StrictChecksum bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <pier-dir>",
		Short: "Resume an existing pier",
		Long: `Resume an existing pier.

The engine loads its last snapshot, replays the rest of the log,
negotiates versions with the kernel and starts processing events.
SIGINT or SIGTERM exits gracefully after a final snapshot; SIGUSR1
logs the pier's status.

Example:
  vere run ./zod
  vere run ./zod --inject ./events.yaml --exit
  vere run ./zod --scry /x/counter
  vere run ./zod --metrics-addr :9090 --tty`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPier(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Inject, "inject", "", "events file (YAML) to inject once live")
	cmd.Flags().StringVar(&opts.Scry, "scry", "", "peek this path once live, print it and exit")
	cmd.Flags().BoolVar(&opts.Exit, "exit", false, "exit once injected events are done")
	cmd.Flags().BoolVar(&opts.StrictChecksum, "strict-checksum", false, "fail replay on a mug mismatch")
	opts.PierFlags.register(cmd)

	return cmd
}

func runPier(opts *RunOptions, dir string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, dir)
	if err != nil {
		return err
	}
	opts.PierFlags.apply(cmd, &cfg)
	if cmd.Flags().Changed("scry") {
		cfg.Scry = opts.Scry
	}
	if cmd.Flags().Changed("strict-checksum") {
		cfg.StrictChecksum = opts.StrictChecksum
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	o := shipOptions(cmd, &opts.PierFlags)
	if cfg.Scry != "" {
		o.OnScry = scryPrinter(cmd.OutOrStdout())
	}
	if opts.Inject != "" {
		o.Events, err = drivers.LoadEvents(opts.Inject)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load events", err)
		}
	}

	var s *ship.Ship
	if opts.Exit && len(o.Events) == 0 {
		o.OnLive = func() { s.Exit() }
	}

	s, err = ship.OpenExisting(cfg, o)
	if err != nil {
		if errors.Is(err, ship.ErrNoPier) {
			return WrapExitError(ExitCommandError, "no pier to run", err)
		}
		return WrapExitError(ExitCommandError, "failed to open pier", err)
	}
	if opts.Exit && len(o.Events) > 0 {
		s.Inject.OnDrained = s.Pier.Exit
	}

	if err := runShip(cmd, s); err != nil {
		return err
	}
	return summarize(opts.RootOptions, cmd, s.Pier)
}
