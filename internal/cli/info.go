package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vere/internal/ship"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Backend string
}

// PierInfo describes a pier at rest.
type PierInfo struct {
	Dir       string `json:"dir"`
	Backend   string `json:"backend"`
	Who       string `json:"who"`
	Fake      bool   `json:"fake"`
	Lifecycle uint64 `json:"lifecycle"`
	Events    uint64 `json:"events"`
}

// WriteText renders i as aligned "key: value" lines.
func (i PierInfo) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%-10s %s\n%-10s %s\n%-10s %s\n%-10s %t\n%-10s %d\n%-10s %d\n",
		"dir:", i.Dir,
		"backend:", i.Backend,
		"who:", i.Who,
		"fake:", i.Fake,
		"lifecycle:", i.Lifecycle,
		"events:", i.Events)
	return err
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <pier-dir>",
		Short: "Describe a pier without running it",
		Long: `Read a pier's identity and log length without starting its engine.
The pier must not be running.

Examples:
  vere info ./zod
  vere info ./zod --backend pebble --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pierInfo(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", "", "event log backend (sqlite|pebble)")

	return cmd
}

func pierInfo(opts *InfoOptions, dir string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, dir)
	if err != nil {
		return err
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}

	log, err := ship.OpenLog(cfg)
	if err != nil {
		if errors.Is(err, ship.ErrNoPier) {
			return WrapExitError(ExitCommandError, "no pier here", err)
		}
		return WrapExitError(ExitCommandError, "failed to open log", err)
	}
	defer log.Close()

	ctx := context.Background()
	meta, found, err := log.LoadMeta(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pier identity", err)
	}
	if !found {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s has a log but was never booted", dir))
	}
	last, err := log.LastEvent(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(PierInfo{
		Dir:       cfg.Dir,
		Backend:   cfg.Backend,
		Who:       meta.Who,
		Fake:      meta.Fake,
		Lifecycle: meta.Lifecycle,
		Events:    last,
	})
}
