package drivers

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// Term is the terminal driver: blit and pong effects are written to out,
// and lines read from in become belt events.
type Term struct {
	poster pier.Poster
	in     io.Reader
	out    io.Writer

	queue   []ir.Event
	started bool
	wg      sync.WaitGroup
}

// NewTerm creates a terminal driver. in may be nil for output only.
func NewTerm(poster pier.Poster, in io.Reader, out io.Writer) *Term {
	return &Term{poster: poster, in: in, out: out}
}

func (t *Term) Name() string { return "term" }

func (t *Term) Start() {
	t.started = true
	if t.in == nil {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		sc := bufio.NewScanner(t.in)
		for sc.Scan() {
			line := sc.Text()
			if !t.poster.Post(func() { t.belt(line) }) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("terminal input failed", "error", err)
		}
	}()
}

func (t *Term) belt(line string) {
	if !t.started {
		return
	}
	t.queue = append(t.queue, ir.Event{
		Wire: ir.Wire{t.Name(), "1"},
		Card: ir.Card{Tag: "belt", Data: ir.Map{"line": ir.String(line)}},
	})
}

func (t *Term) Live() bool { return t.started }

func (t *Term) Next() (ir.Event, bool) {
	if len(t.queue) == 0 {
		return ir.Event{}, false
	}
	ev := t.queue[0]
	t.queue = t.queue[1:]
	return ev, true
}

func (t *Term) Claim(fx ir.Effect) bool {
	if fx.Wire.Driver() != t.Name() {
		return false
	}
	switch fx.Card.Tag {
	case "blit":
		data, _ := fx.Card.Data.(ir.Map)
		fmt.Fprintln(t.out, data.Text("line"))
	case "pong":
		fmt.Fprintln(t.out, "pong")
	default:
		slog.Debug("terminal effect ignored", "tag", fx.Card.Tag)
	}
	return true
}

func (t *Term) Done(ir.Event) {}

func (t *Term) Bail(ev ir.Event, err error) {
	fmt.Fprintf(t.out, "%%%s failed: %v\n", ev.Card.Tag, err)
}

// Teardown stops accepting input. A reader goroutine blocked on in
// exits once in returns.
func (t *Term) Teardown() {
	t.started = false
}

// Wait blocks until the input goroutine has returned.
func (t *Term) Wait() {
	t.wg.Wait()
}
