package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vere/internal/drivers"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/ship"
)

// NewOptions holds flags for the new command.
type NewOptions struct {
	*RootOptions
	PierFlags

	Who    string
	Fake   bool
	Pill   string
	Inject string
	Exit   bool
}

// NewNewCommand creates the new command.
func NewNewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "new <pier-dir>",
		Short: "Boot a new pier",
		Long: `Boot a new pier in an empty directory.

The boot sequence (lifecycle formulas, kernel modules and userspace
events) comes from --pill, or the built-in pill. The pier then runs
until it is signalled, or exits as soon as it is live with --exit.

Example:
  vere new ./zod --who ~zod --fake --exit
  vere new ./zod --who ~zod --pill ./solid.yaml --backend pebble`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newPier(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Who, "who", "", "ship name, e.g. ~zod")
	cmd.Flags().BoolVarP(&opts.Fake, "fake", "F", false, "boot a fake ship")
	cmd.Flags().StringVar(&opts.Pill, "pill", "", "boot sequence file (YAML)")
	cmd.Flags().StringVar(&opts.Inject, "inject", "", "events file (YAML) to inject once live")
	cmd.Flags().BoolVar(&opts.Exit, "exit", false, "exit once the pier is live and injected events are done")
	opts.PierFlags.register(cmd)

	return cmd
}

func newPier(opts *NewOptions, dir string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, dir)
	if err != nil {
		return err
	}
	opts.PierFlags.apply(cmd, &cfg)
	if cmd.Flags().Changed("who") {
		cfg.Who = opts.Who
	}
	if cmd.Flags().Changed("fake") {
		cfg.Fake = opts.Fake
	}
	if cfg.Who == "" {
		return NewExitError(ExitCommandError, "--who is required for a new pier")
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	seq := ship.DefaultPill()
	if opts.Pill != "" {
		seq, err = ship.LoadPill(opts.Pill)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load pill", err)
		}
	}

	o := shipOptions(cmd, &opts.PierFlags)
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

	s, err = ship.Open(cfg, o)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open pier", err)
	}
	if !s.IsNew() {
		s.Disk.Close()
		return NewExitError(ExitCommandError, fmt.Sprintf("pier already exists in %s (%s)", dir, s.Meta().Who))
	}
	if opts.Exit && len(o.Events) > 0 {
		s.Inject.OnDrained = s.Pier.Exit
	}

	if err := s.Boot(seq); err != nil {
		s.Disk.Close()
		return WrapExitError(ExitFailure, "boot failed", err)
	}

	if err := runShip(cmd, s); err != nil {
		return err
	}
	return summarize(opts.RootOptions, cmd, s.Pier)
}

func summarize(opts *RootOptions, cmd *cobra.Command, p *pier.Pier) error {
	if opts.Format != "json" && !opts.Verbose {
		return nil
	}
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(p.Info())
}
