// Package ship assembles a runnable pier from its configuration: the log
// backend, the async disk, the engine, the driver chain and the
// double-boot checker.
package ship

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/vere/internal/config"
	"github.com/roach88/vere/internal/czar"
	"github.com/roach88/vere/internal/disk"
	"github.com/roach88/vere/internal/drivers"
	"github.com/roach88/vere/internal/eventlog"
	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/serf"
	"github.com/roach88/vere/internal/store"
)

// Log locations relative to the pier directory.
const (
	logDir     = ".urb/log"
	sqliteFile = "events.sqlite3"
	pebbleDir  = "pebble"
)

// ErrNoPier is returned by OpenExisting for a directory with no pier.
var ErrNoPier = errors.New("no pier here")

// Options are the parts of a ship not found in its configuration.
type Options struct {
	// In and Out back the terminal driver. Nil In disables input; nil Out
	// discards output.
	In  io.Reader
	Out io.Writer

	// Events are injected once the pier starts working.
	Events []ir.Event

	// Kernel overrides the engine's kelvin vector.
	Kernel []ir.Kelvin

	// BootRecord answers the engine's boot peek.
	BootRecord ir.Value

	// Tap, if set, sees every effect before the drivers do.
	Tap func(ir.Effect)

	Now     func() time.Time
	OnScry  func(ir.Value, error)
	OnLive  func()
	OnState func(pier.State)
}

// Ship is a pier with its collaborators.
type Ship struct {
	Config  config.Config
	Reactor *pier.Reactor
	Pier    *pier.Pier
	Disk    *disk.Disk
	Serf    *serf.Serf
	Chain   *drivers.Chain
	Inject  *drivers.Inject
	Term    *drivers.Term
	Behn    *drivers.Behn

	meta  pier.Meta
	isNew bool
}

// Open assembles the ship in cfg.Dir, creating the directory if needed.
func Open(cfg config.Config, o Options) (*Ship, error) {
	if cfg.Dir == "" {
		return nil, errors.New("pier directory is required")
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, logDir), 0o755); err != nil {
		return nil, fmt.Errorf("create pier: %w", err)
	}

	be, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	rx := pier.NewReactor()
	d, err := disk.Open(be, rx)
	if err != nil {
		be.Close()
		return nil, err
	}

	meta, found, err := d.LoadMeta()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load pier identity: %w", err)
	}

	out := o.Out
	if out == nil {
		out = io.Discard
	}

	s := &Ship{
		Config:  cfg,
		Reactor: rx,
		Disk:    d,
		Serf:    serf.New(rx, serf.Options{Dir: cfg.Dir, Kernel: o.Kernel, BootRecord: o.BootRecord}),
		Inject:  drivers.NewInject(o.Events...),
		Term:    drivers.NewTerm(rx, o.In, out),
		Behn:    drivers.NewBehn(rx),
		meta:    meta,
		isNew:   !found,
	}
	root := []drivers.Driver{s.Inject, drivers.NewChain("io", s.Behn, s.Term)}
	if o.Tap != nil {
		root = append([]drivers.Driver{drivers.NewTap(o.Tap)}, root...)
	}
	s.Chain = drivers.NewChain("root", root...)

	opts := cfg.PierOptions()
	opts.Now = o.Now
	opts.OnScry = o.OnScry
	opts.OnLive = o.OnLive
	opts.OnState = o.OnState
	if cfg.Czar.URL != "" {
		opts.Checker = czar.New(czar.Options{URL: cfg.Czar.URL, Rift: cfg.Czar.Rift, Timeout: cfg.Czar.Timeout})
	}

	s.Pier = pier.New(rx, d, s.Serf, s.Chain, opts)
	if found {
		if err := s.Pier.Resume(meta); err != nil {
			d.Close()
			return nil, err
		}
	}
	return s, nil
}

// OpenExisting is Open for a directory that must already hold a pier.
func OpenExisting(cfg config.Config, o Options) (*Ship, error) {
	s, err := Open(cfg, o)
	if err != nil {
		return nil, err
	}
	if s.isNew {
		s.Disk.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Dir, ErrNoPier)
	}
	return s, nil
}

// OpenLog opens the pier's event log directly, for offline inspection.
// The pier must not be running.
func OpenLog(cfg config.Config) (disk.Backend, error) {
	if _, err := os.Stat(filepath.Join(cfg.Dir, logDir)); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Dir, ErrNoPier)
	}
	return openBackend(cfg)
}

func openBackend(cfg config.Config) (disk.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		st, err := store.Open(filepath.Join(cfg.Dir, logDir, sqliteFile))
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		return st, nil
	case config.BackendPebble:
		l, err := eventlog.Open(eventlog.Options{Dir: filepath.Join(cfg.Dir, logDir, pebbleDir), NoSync: cfg.NoSync})
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

// IsNew reports whether the pier has never been booted.
func (s *Ship) IsNew() bool { return s.isNew }

// Meta returns the identity the pier was opened with.
func (s *Ship) Meta() pier.Meta { return s.meta }

// Boot writes seq to a new pier. Call before Run.
func (s *Ship) Boot(seq pier.BootSequence) error {
	if !s.isNew {
		return fmt.Errorf("pier %s is already booted as %s", s.Config.Dir, s.meta.Who)
	}
	return s.Pier.Boot(seq)
}

// Exit asks the pier to shut down gracefully. Safe from any goroutine.
func (s *Ship) Exit() {
	s.Reactor.Post(s.Pier.Exit)
}

// Run drives the pier until it reaches DONE or ctx is cancelled, and
// returns the error that ended it.
func (s *Ship) Run(ctx context.Context) error {
	s.Pier.Start(ctx)

	if err := s.Reactor.Run(ctx); err != nil {
		slog.Warn("pier interrupted", "state", s.Pier.State(), "error", err)
		s.Serf.Halt()
		s.Chain.Teardown()
		if cerr := s.Disk.Close(); cerr != nil && !errors.Is(cerr, disk.ErrClosed) {
			slog.Error("closing log", "error", cerr)
		}
		s.Serf.Wait()
		return err
	}

	s.Serf.Wait()
	return s.Pier.Err()
}
