package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/vere/internal/ship"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	PierFlags

	Til            uint64
	StrictChecksum bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <pier-dir>",
		Short: "Replay the event log and exit",
		Long: `Replay the pier's event log into the engine, save a snapshot and exit
without processing new events.

With --til, replay stops at that event and a portable snapshot of the
engine at that point is written instead.

Exit codes:
  0 - Replay completed
  1 - The engine failed to replay an event, or a checksum did not match
  2 - Command error (no pier, bad flags, etc.)

Examples:
  vere replay ./zod
  vere replay ./zod --til 1200 --strict-checksum
  vere replay ./zod --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayPier(opts, args[0], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Til, "til", 0, "replay up to and including this event")
	cmd.Flags().BoolVar(&opts.StrictChecksum, "strict-checksum", false, "fail on a mug mismatch")
	opts.PierFlags.register(cmd)

	return cmd
}

func replayPier(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.RootOptions, dir)
	if err != nil {
		return err
	}
	opts.PierFlags.apply(cmd, &cfg)
	if cmd.Flags().Changed("til") {
		cfg.Til = opts.Til
	}
	if cmd.Flags().Changed("strict-checksum") {
		cfg.StrictChecksum = opts.StrictChecksum
	}
	cfg.ExitAfterReplay = true
	if err := validateConfig(cfg); err != nil {
		return err
	}

	s, err := ship.OpenExisting(cfg, shipOptions(cmd, &opts.PierFlags))
	if err != nil {
		if errors.Is(err, ship.ErrNoPier) {
			return WrapExitError(ExitCommandError, "no pier to replay", err)
		}
		return WrapExitError(ExitCommandError, "failed to open pier", err)
	}

	if err := runShip(cmd, s); err != nil {
		return err
	}

	st := s.Pier.Info()
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(ReplayResult{Who: st.Who, Eve: st.EngineEve, Durable: st.Durable})
}

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Who     string `json:"who"`
	Eve     uint64 `json:"eve"`
	Durable uint64 `json:"durable"`
}

func (r ReplayResult) String() string {
	if r.Eve < r.Durable {
		return fmt.Sprintf("replayed %s to %d of %d", r.Who, r.Eve, r.Durable)
	}
	return fmt.Sprintf("replayed %s to %d", r.Who, r.Eve)
}
