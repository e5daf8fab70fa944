// Package czar checks a ship's networking state against its sponsoring
// galaxy before boot, refusing to run a second live copy of the ship.
package czar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// DefaultTimeout bounds a single request to the galaxy.
const DefaultTimeout = 10 * time.Second

// ErrDoubleBoot is the root of every refusal.
var ErrDoubleBoot = errors.New("double boot detected")

// Options configures a Checker.
type Options struct {
	// URL is the galaxy's base URL, e.g. "https://zod.urbit.org".
	URL string

	// Rift is the rift from the ship's keyfile, nil if unknown.
	Rift *int64

	Timeout time.Duration
	Client  *http.Client
}

var _ pier.BootChecker = (*Checker)(nil)

// Checker is a pier.BootChecker backed by a galaxy's HTTP boot endpoint.
type Checker struct {
	opts Options
}

// New creates a Checker.
func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Checker{opts: opts}
}

// Peer is the galaxy's view of a ship.
type Peer struct {
	Galaxy string `json:"galaxy"`
	Rift   int64  `json:"rift"`
	Life   int64  `json:"life"`
	Bone   *int64 `json:"bone,omitempty"`
	Ack    *int64 `json:"ack,omitempty"`
}

// record is the engine's own networking state for the ship.
type record struct {
	galaxy string
	rift   int64
	bone   int64
	cur    int64
	nex    int64
}

func parseRecord(v ir.Value) (record, bool) {
	m, ok := v.(ir.Map)
	if !ok {
		return record{}, false
	}
	var r record
	r.galaxy = m.Text("galaxy")
	for key, dst := range map[string]*int64{"rift": &r.rift, "bone": &r.bone, "cur": &r.cur, "nex": &r.nex} {
		n, ok := m.Number(key)
		if !ok {
			return record{}, false
		}
		*dst = n
	}
	return r, true
}

// CheckBoot decides whether who may boot. A nil return permits boot.
func (c *Checker) CheckBoot(ctx context.Context, who string, v ir.Value, scryErr error) error {
	if scryErr != nil {
		slog.Warn("boot scry unavailable, cannot protect from double boot", "who", who, "error", scryErr)
		return nil
	}

	if rec, ok := parseRecord(v); ok {
		return c.checkKnown(ctx, who, rec)
	}
	if v != nil {
		slog.Warn("boot scry returned an unknown shape, cannot protect from double boot", "who", who)
		return nil
	}
	return c.checkFresh(ctx, who)
}

// checkKnown compares the ship's message state with what the galaxy has
// acknowledged.
func (c *Checker) checkKnown(ctx context.Context, who string, rec record) error {
	bone := rec.bone
	peer, err := c.fetch(ctx, who, &bone)
	if err != nil {
		slog.Warn("peer state unavailable on galaxy, cannot protect from double boot", "who", who, "galaxy", rec.galaxy, "error", err)
		return nil
	}

	if peer.Rift != rec.rift {
		return fmt.Errorf("%w: booting an existing ship %s from a keyfile; resume the latest pier or breach", ErrDoubleBoot, who)
	}
	if peer.Ack == nil {
		slog.Warn("message sink state unavailable on galaxy, cannot protect from double boot", "who", who)
		return nil
	}

	ack := rec.cur - 1
	if rec.nex-rec.cur >= *peer.Ack-ack {
		return nil
	}
	return fmt.Errorf("%w: %s is an old copy; resume the latest pier or breach", ErrDoubleBoot, who)
}

// checkFresh handles a pier with no networking state of its own.
func (c *Checker) checkFresh(ctx context.Context, who string) error {
	peer, err := c.fetch(ctx, who, nil)
	if err != nil {
		slog.Debug("no peer state on galaxy", "who", who, "error", err)
		return nil
	}

	switch {
	case c.opts.Rift == nil:
		slog.Warn("keyfile rift unavailable, cannot protect from double boot", "who", who)
		return nil
	case *c.opts.Rift > peer.Rift:
		// breached; the galaxy has not heard yet
		return nil
	case *c.opts.Rift == peer.Rift && peer.Bone == nil:
		return nil
	default:
		return fmt.Errorf("%w: %s has already been booted elsewhere; boot the existing pier or breach", ErrDoubleBoot, who)
	}
}

// fetch asks the galaxy for its view of who.
func (c *Checker) fetch(ctx context.Context, who string, bone *int64) (*Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := c.opts.URL + "/~/boot/" + url.PathEscape(who)
	if bone != nil {
		u += "/" + strconv.FormatInt(*bone, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("galaxy returned %s", resp.Status)
	}

	var peer Peer
	if err := json.NewDecoder(resp.Body).Decode(&peer); err != nil {
		return nil, fmt.Errorf("decode peer state: %w", err)
	}
	return &peer, nil
}
