package pier

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/vere/internal/ir"
)

// IsGalaxy reports whether who names a galaxy (three letters, "~zod").
func IsGalaxy(who string) bool {
	return len(strings.TrimPrefix(who, "~")) == 3
}

func (p *Pier) needBootCheck() bool {
	return p.opts.Checker != nil && !p.opts.Local && !p.fake && !IsGalaxy(p.who)
}

// runBootCheck asks the engine for its networking record, then hands it
// to the checker on its own goroutine. The verdict is posted back.
func (p *Pier) runBootCheck() {
	p.check = checkRunning
	slog.Info("checking for other live copies", "who", p.who)

	q := ir.Peek{ID: uuid.NewString(), Path: ir.Path{"boot"}}
	p.eng.Peek(q, func(record ir.Value, scryErr error) {
		if p.gone() {
			return
		}
		ctx, who, checker := p.ctx, p.who, p.opts.Checker
		go func() {
			err := checker.CheckBoot(ctx, who, record, scryErr)
			p.rx.Post(func() { p.onBootChecked(err) })
		}()
	})
}

func (p *Pier) onBootChecked(err error) {
	if p.gone() {
		return
	}
	if err != nil {
		p.bail(&PierError{Code: ErrCodeDoubleBoot, Message: "another copy of this ship may be live", Err: err})
		return
	}

	p.check = checkPassed
	slog.Info("boot check passed", "who", p.who)
	if p.wyrdPending {
		p.wyrdPending = false
		p.startWyrd()
	}
}
