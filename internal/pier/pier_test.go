package pier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
	"github.com/roach88/vere/internal/testutil"
)

type rig struct {
	t   *testing.T
	rx  *pier.Reactor
	log *testutil.MemLog
	eng *testutil.ManualEngine
	drv *testutil.FakeChain
	p   *pier.Pier
}

func newRig(t *testing.T, facts []ir.Fact, engineEve uint64, opts pier.Options) *rig {
	t.Helper()
	rx := pier.NewReactor()
	r := &rig{
		t:   t,
		rx:  rx,
		log: testutil.NewMemLog(rx, facts...),
		eng: testutil.NewManualEngine(rx, engineEve),
		drv: testutil.NewFakeChain(),
	}
	if opts.Now == nil {
		opts.Now = testutil.NewManualClock(time.Time{}).Now
	}
	if opts.Who == "" {
		opts.Who = "~zod"
	}
	r.p = pier.New(rx, r.log, r.eng, r.drv, opts)
	return r
}

func (r *rig) turn(n int) {
	for i := 0; i < n; i++ {
		r.rx.Turn()
	}
}

// resume starts an existing pier and runs the engine-start completion.
func (r *rig) resume(lifecycle uint64) {
	r.t.Helper()
	require.NoError(r.t, r.p.Resume(pier.Meta{Who: r.p.Who(), Lifecycle: lifecycle}))
	r.p.Start(context.Background())
	r.turn(1)
}

// toWork takes a caught-up pier through wyrd into WORK and makes the wyrd
// event durable.
func (r *rig) toWork() {
	r.t.Helper()
	r.resume(3)
	require.Equal(r.t, pier.StateWyrd, r.p.State())
	r.eng.Finish(1)
	r.turn(1)
	require.Equal(r.t, pier.StateWork, r.p.State())
	r.log.Commit(-1)
	r.turn(1)
}

func (r *rig) lastKinds(n int) []testutil.RequestKind {
	kinds := r.eng.Kinds()
	return kinds[len(kinds)-n:]
}

func events(n int) []ir.Event {
	out := make([]ir.Event, n)
	for i := range out {
		out[i] = testutil.Event("belt", "term", "1")
	}
	return out
}

func wend(name string, version int64) ir.Effect {
	return ir.Effect{
		Wire: ir.Wire{"arvo"},
		Card: ir.Card{
			Tag:  "wend",
			Data: ir.List{ir.Map{"name": ir.String(name), "version": ir.Int(version)}},
		},
	}
}

type checkerFunc func(ctx context.Context, who string, record ir.Value, scryErr error) error

func (f checkerFunc) CheckBoot(ctx context.Context, who string, record ir.Value, scryErr error) error {
	return f(ctx, who, record, scryErr)
}

// --- boot ---

func TestPier_FreshBootReachesWork(t *testing.T) {
	r := newRig(t, nil, 0, pier.Options{Who: "~zod", Fake: true})
	r.log.AutoCommit = true
	r.log.AutoRead = true

	lifecycle := make([]ir.Value, 12)
	for i := range lifecycle {
		lifecycle[i] = ir.Map{"formula": ir.Int(i)}
	}
	require.NoError(t, r.p.Boot(pier.BootSequence{
		Lifecycle: lifecycle,
		Modules:   []ir.Event{testutil.Event("veer", "d", "mod")},
	}))
	assert.Equal(t, pier.StateBoot, r.p.State())

	meta := r.log.Meta()
	require.NotNil(t, meta)
	assert.Equal(t, pier.Meta{Who: "~zod", Fake: true, Lifecycle: 12}, *meta)

	r.p.Start(context.Background())
	r.turn(2)
	require.Equal(t, pier.StatePlay, r.p.State())

	facts := r.log.Facts()
	require.Len(t, facts, 15)
	for _, f := range facts[:12] {
		assert.True(t, f.IsLifecycle(), "fact %d", f.Eve)
	}
	assert.Equal(t, "wyrd", facts[12].Event.Card.Tag)
	assert.Equal(t, "boot", facts[14].Event.Card.Tag)
	assert.Less(t, facts[12].Event.Time, facts[13].Event.Time)

	// the whole boot sequence goes out as one batch
	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Len(t, out[0].Facts, 15)

	r.eng.Finish(-1)
	r.turn(1)
	require.Equal(t, pier.StateWyrd, r.p.State())

	r.eng.Finish(-1)
	r.turn(2)
	assert.Equal(t, pier.StateWork, r.p.State())
	assert.Equal(t, []testutil.RequestKind{"play", "save", "work"}, r.eng.Kinds())
	assert.Equal(t, []uint64{16}, r.drv.DeliveredEves())
	assert.Equal(t, 1, r.drv.Started())
	assert.True(t, r.p.Info().Live)
}

func TestPier_BootSkipsPlayWhenEngineCaughtUp(t *testing.T) {
	r := newRig(t, nil, 5, pier.Options{Fake: true})
	r.log.AutoCommit = true

	require.NoError(t, r.p.Boot(pier.BootSequence{
		Lifecycle: []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)},
	}))
	r.p.Start(context.Background())
	r.turn(1)

	// 3 formulas, wyrd, boot: the engine snapshot is already at 5
	assert.Equal(t, pier.StateWyrd, r.p.State())
	assert.Zero(t, r.eng.Count(testutil.KindPlay))
}

func TestPier_BootRejectsBadSequences(t *testing.T) {
	r := newRig(t, nil, 0, pier.Options{})
	assert.Error(t, r.p.Boot(pier.BootSequence{}))

	r = newRig(t, testutil.Lifecycle(2), 0, pier.Options{})
	err := r.p.Boot(pier.BootSequence{Lifecycle: []ir.Value{ir.Int(1)}})
	assert.True(t, pier.IsInvariantError(err))

	r = newRig(t, nil, 0, pier.Options{})
	r.log.SaveMetaErr = errors.New("disk full")
	err = r.p.Boot(pier.BootSequence{Lifecycle: []ir.Value{ir.Int(1)}})
	assert.Equal(t, pier.ErrCodeLogWrite, pier.CodeOf(err))
	assert.Equal(t, pier.StateInit, r.p.State())
}

func TestPier_BootWriteFailureBails(t *testing.T) {
	r := newRig(t, nil, 0, pier.Options{Fake: true})
	require.NoError(t, r.p.Boot(pier.BootSequence{Lifecycle: []ir.Value{ir.Int(1)}}))
	r.p.Start(context.Background())

	r.log.FailWrite(errors.New("io error"))
	r.turn(1)

	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, pier.ErrCodeLogWrite, pier.CodeOf(r.p.Err()))
	assert.Equal(t, 1, r.p.ExitCode())
	assert.True(t, r.eng.Halted())
	assert.True(t, r.log.Closed())
}

// --- replay ---

func TestPier_ReplayReadAndSendPacing(t *testing.T) {
	facts := append(testutil.Lifecycle(3), testutil.Facts(4, 2497)...)
	r := newRig(t, facts, 1000, pier.Options{})

	r.resume(3)
	require.Equal(t, pier.StatePlay, r.p.State())

	reads := r.log.Reads()
	require.Len(t, reads, 1)
	assert.Equal(t, uint64(1001), reads[0].Start)
	assert.Equal(t, uint64(1000), reads[0].Count)

	r.log.ServeReads()
	r.turn(1)

	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Equal(t, uint64(1001), out[0].Facts[0].Eve)
	assert.Len(t, out[0].Facts, 500)

	// 1501-2000 still queued is a span below 500, so the next read goes out
	reads = r.log.Reads()
	require.Len(t, reads, 1)
	assert.Equal(t, uint64(2001), reads[0].Start)
	assert.Equal(t, uint64(500), reads[0].Count)

	info := r.p.Info()
	assert.Equal(t, uint64(2500), info.ReplayTarget)
	assert.Equal(t, uint64(1500), info.ReplaySent)
	assert.Equal(t, uint64(2001), info.ReplayRead)

	r.log.ServeReads()
	r.turn(1)
	out = r.eng.Outstanding()
	require.Len(t, out, 2)
	assert.Equal(t, uint64(1501), out[1].Facts[0].Eve)
	assert.Len(t, out[1].Facts, 500)
	assert.Empty(t, r.log.Reads(), "nothing left to read")

	r.eng.Finish(-1)
	r.turn(1)
	out = r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Equal(t, uint64(2001), out[0].Facts[0].Eve)
	assert.Equal(t, uint64(2500), out[0].Facts[len(out[0].Facts)-1].Eve)

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, pier.StateWyrd, r.p.State())
	assert.Equal(t, uint64(2500), r.eng.Eve())
	assert.Equal(t, []testutil.RequestKind{"play", "play", "play", "save", "work"}, r.eng.Kinds())
}

func TestPier_ReplayFirstBatchCoversLifecycle(t *testing.T) {
	facts := append(testutil.Lifecycle(8), testutil.Facts(9, 12)...)
	r := newRig(t, facts, 0, pier.Options{PlayBatch: 5, ReadBatch: 4})

	r.resume(8)
	r.log.ServeReads()
	r.turn(1)
	assert.Empty(t, r.eng.Outstanding(), "4 facts cannot cover a lifecycle of 8")

	r.log.ServeReads()
	r.turn(1)
	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Len(t, out[0].Facts, 8)

	// later batches are capped at the play batch and by what was read
	for i := 0; i < 6; i++ {
		r.log.ServeReads()
		r.turn(1)
	}
	out = r.eng.Outstanding()
	total := 0
	for _, req := range out {
		total += len(req.Facts)
	}
	assert.Equal(t, 20, total)
	for _, req := range out[1:] {
		assert.LessOrEqual(t, len(req.Facts), 5)
	}
}

func TestPier_ReplayFailureBails(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{})
	r.log.AutoRead = true

	r.resume(0)
	r.turn(1)
	require.Len(t, r.eng.Outstanding(), 1)

	r.eng.Fail(&pier.Goof{Eve: 4, Mote: "exit", Trace: []string{"/sys/vane", "crash"}})
	r.turn(1)

	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 1, r.p.ExitCode())

	var pe *pier.PierError
	require.ErrorAs(t, r.p.Err(), &pe)
	assert.Equal(t, pier.ErrCodePlay, pe.Code)
	assert.Equal(t, uint64(5), pe.Eve)
	assert.Equal(t, []string{"/sys/vane", "crash"}, pe.Trace)
	assert.Contains(t, pe.Message, "%put on /test/fact")

	assert.True(t, r.eng.Halted())
	assert.True(t, r.log.Closed())
	assert.False(t, r.rx.Turn(), "reactor stopped")
}

func TestPier_ReplayReadFailureBails(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{})
	r.resume(0)

	r.log.FailRead(errors.New("corrupt page"))
	r.turn(1)

	assert.Equal(t, pier.ErrCodeLogRead, pier.CodeOf(r.p.Err()))
	assert.Equal(t, pier.StateDone, r.p.State())
}

func TestPier_ReplayMugMismatch(t *testing.T) {
	facts := testutil.Facts(1, 10)
	facts[9].Mug = 0xabc

	t.Run("logged and continues", func(t *testing.T) {
		r := newRig(t, facts, 0, pier.Options{})
		r.log.AutoRead = true
		r.eng.PlayMug = func(ir.Fact) uint32 { return 0x123 }

		r.resume(0)
		r.turn(1)
		r.eng.Finish(-1)
		r.turn(1)

		assert.Equal(t, pier.StateWyrd, r.p.State())
		assert.NoError(t, r.p.Err())
	})

	t.Run("strict mode bails", func(t *testing.T) {
		r := newRig(t, facts, 0, pier.Options{StrictChecksum: true})
		r.log.AutoRead = true
		r.eng.PlayMug = func(ir.Fact) uint32 { return 0x123 }

		r.resume(0)
		r.turn(1)
		r.eng.Finish(-1)
		r.turn(1)

		assert.Equal(t, pier.StateDone, r.p.State())
		assert.Equal(t, pier.ErrCodeChecksum, pier.CodeOf(r.p.Err()))
	})
}

func TestPier_ReplayToTargetCramsAndExits(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{ReplayTo: 6})
	r.log.AutoRead = true

	r.resume(0)
	reads := r.log.Reads()
	assert.Empty(t, reads)
	r.turn(1)

	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Len(t, out[0].Facts, 6)

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, []testutil.RequestKind{"play", "cram"}, r.eng.Kinds())

	r.eng.Finish(-1)
	r.turn(2)
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 0, r.p.ExitCode())
	assert.True(t, r.eng.Exited())
	assert.True(t, r.log.Closed())
}

func TestPier_ReplayToAtEngineEveCrams(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 5, pier.Options{ReplayTo: 5})

	r.resume(0)
	assert.Equal(t, []testutil.RequestKind{"cram"}, r.eng.Kinds())
	assert.Empty(t, r.log.Reads())
	assert.False(t, r.eng.Exited(), "waits for the cram")

	r.eng.Finish(-1)
	r.turn(2)
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 0, r.p.ExitCode())
	assert.True(t, r.eng.Exited())
	assert.True(t, r.log.Closed())
}

func TestPier_ReplayToAtEngineEveCramFailureBails(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 5, pier.Options{ReplayTo: 5})

	r.resume(0)
	require.True(t, r.eng.Fail(errors.New("disk full")))
	r.turn(1)

	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 1, r.p.ExitCode())
	assert.Equal(t, pier.ErrCodeEngine, pier.CodeOf(r.p.Err()))
}

func TestPier_ExitAfterReplaySavesAndStops(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{ExitAfterReplay: true})
	r.log.AutoRead = true

	r.resume(0)
	r.turn(1)
	r.eng.Finish(-1)
	r.turn(1)

	assert.Equal(t, pier.StateDone, r.p.State())
	assert.False(t, r.eng.Exited(), "waits for the save")

	r.eng.Finish(-1)
	r.turn(2)
	assert.True(t, r.eng.Exited())
	assert.Equal(t, []testutil.RequestKind{"play", "save"}, r.eng.Kinds())
	assert.Zero(t, r.drv.Started())
}

func TestPier_EngineAheadOfLogIsInvariantViolation(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 3), 5, pier.Options{})
	r.resume(0)

	assert.True(t, pier.IsInvariantError(r.p.Err()))
	assert.Equal(t, 1, r.p.ExitCode())
}

func TestPier_EngineStartFailure(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 3), 0, pier.Options{})
	r.eng.StartErr = errors.New("no snapshot")
	r.resume(0)

	assert.Equal(t, pier.ErrCodeEngine, pier.CodeOf(r.p.Err()))
	assert.Equal(t, pier.StateDone, r.p.State())
}

// --- wyrd ---

func TestPier_WyrdEventCarriesKelvins(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.resume(3)

	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	ev := out[0].Event
	assert.Equal(t, ir.Wire{"arvo"}, ev.Wire)
	assert.Equal(t, "wyrd", ev.Card.Tag)

	data, ok := ev.Card.Data.(ir.Map)
	require.True(t, ok)
	ver := data["ver"].(ir.Map)
	assert.Equal(t, ir.RuntimeName, ver.Text("name"))

	kel := data["kel"].(ir.List)
	require.Len(t, kel, len(ir.Kelvins))
	first := kel[0].(ir.Map)
	assert.Equal(t, "zuse", first.Text("name"))
	v, _ := first.Number("version")
	assert.Equal(t, int64(410), v)
}

func TestPier_WyrdDowngradeFailsGracefully(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.eng.Effects = func(ev ir.Event) []ir.Effect {
		return []ir.Effect{wend("zuse", 409)}
	}

	r.resume(3)
	r.eng.Finish(-1)
	r.turn(1)

	assert.Equal(t, pier.StateDone, r.p.State())
	assert.NotEqual(t, pier.StateWork, r.p.State())
	assert.Equal(t, pier.ErrCodeVersion, pier.CodeOf(r.p.Err()))
	assert.True(t, pier.IsVersionError(r.p.Err()))
	assert.Equal(t, 1, r.p.ExitCode())
	assert.Equal(t, uint64(3), r.log.Pending(), "wyrd event not committed")
	assert.Zero(t, r.drv.Started())

	r.turn(1)
	assert.True(t, r.eng.Exited())
	assert.False(t, r.eng.Halted(), "graceful, not a bail")
}

func TestPier_WyrdMatchingWendIsAccepted(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.eng.Effects = func(ev ir.Event) []ir.Effect {
		return []ir.Effect{wend("zuse", 410), wend("unknown", 1)}
	}

	r.resume(3)
	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, pier.StateWork, r.p.State())
}

func TestPier_WyrdRejectedByEngine(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.resume(3)

	r.eng.Fail(&pier.Goof{Eve: 4, Mote: "exit", Trace: []string{"kelvin"}})
	r.turn(1)

	assert.Equal(t, pier.ErrCodeWyrd, pier.CodeOf(r.p.Err()))
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 1, r.p.ExitCode())
}

func TestPier_WyrdSuccessCommitsEvent(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.resume(3)
	r.eng.Finish(-1)
	r.turn(1)

	writes := r.log.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(4), writes[0].Fact.Eve)
	assert.Equal(t, "wyrd", writes[0].Fact.Event.Card.Tag)
	assert.Empty(t, r.drv.Delivered(), "gift waits for durability")

	r.log.Commit(-1)
	r.turn(1)
	assert.Equal(t, []uint64{4}, r.drv.DeliveredEves())
}

// --- double boot ---

func TestPier_DoubleBootCheckGatesWyrd(t *testing.T) {
	var gotWho string
	var gotRecord ir.Value
	checker := checkerFunc(func(_ context.Context, who string, record ir.Value, scryErr error) error {
		gotWho, gotRecord = who, record
		return scryErr
	})

	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{Who: "~sampel-palnet", Checker: checker})
	r.eng.Values["/boot"] = ir.Map{"rift": ir.Int(1)}

	r.resume(3)
	assert.Equal(t, pier.StateInit, r.p.State(), "wyrd waits for the check")
	out := r.eng.Outstanding()
	require.Len(t, out, 1)
	assert.Equal(t, testutil.KindPeek, out[0].Kind)
	assert.Equal(t, ir.Path{"boot"}, out[0].Query.Path)

	r.eng.Finish(-1)
	require.Eventually(t, func() bool {
		r.turn(1)
		return r.p.State() == pier.StateWyrd
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, "~sampel-palnet", gotWho)
	assert.Equal(t, ir.Map{"rift": ir.Int(1)}, gotRecord)
}

func TestPier_DoubleBootConflictBails(t *testing.T) {
	checker := checkerFunc(func(context.Context, string, ir.Value, error) error {
		return errors.New("already booted elsewhere")
	})

	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{Who: "~sampel-palnet", Checker: checker})
	r.resume(3)
	r.eng.Finish(-1)

	require.Eventually(t, func() bool {
		r.turn(1)
		return r.p.State() == pier.StateDone
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, pier.ErrCodeDoubleBoot, pier.CodeOf(r.p.Err()))
	assert.Equal(t, 1, r.p.ExitCode())
}

func TestPier_DoubleBootSkipped(t *testing.T) {
	called := false
	checker := checkerFunc(func(context.Context, string, ir.Value, error) error {
		called = true
		return errors.New("should not run")
	})

	for _, opts := range []pier.Options{
		{Who: "~zod", Checker: checker},
		{Who: "~sampel-palnet", Fake: true, Checker: checker},
		{Who: "~sampel-palnet", Local: true, Checker: checker},
	} {
		r := newRig(t, testutil.Lifecycle(3), 3, opts)
		r.resume(3)
		assert.Equal(t, pier.StateWyrd, r.p.State(), "%+v", opts)
	}
	assert.False(t, called)
}

func TestIsGalaxy(t *testing.T) {
	assert.True(t, pier.IsGalaxy("~zod"))
	assert.True(t, pier.IsGalaxy("nec"))
	assert.False(t, pier.IsGalaxy("~marzod"))
	assert.False(t, pier.IsGalaxy("~sampel-palnet"))
}

// --- work ---

func TestPier_WorkBudgetInterleavesPeeks(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(7)...)
	r.turn(1)
	require.Equal(t, 7, r.eng.Depth())

	r.drv.Inject(events(5)...)
	var answered int
	for i := 0; i < 2; i++ {
		r.p.Peek(ir.Peek{Path: ir.Path{"x", "a"}}, func(ir.Value, error) { answered++ })
	}
	r.turn(1)

	assert.Equal(t, 10, r.eng.Depth())
	assert.Equal(t, []testutil.RequestKind{"work", "peek", "work"}, r.lastKinds(3))
	assert.Equal(t, 3, r.drv.Queued())
	assert.Equal(t, 1, r.p.Info().PeeksPending)

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, 1, answered)
}

func TestPier_WorkNeverExceedsBatch(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(30)...)
	r.turn(1)
	assert.Equal(t, 10, r.eng.Depth())
	assert.Equal(t, 20, r.drv.Queued())

	r.eng.Finish(4)
	r.turn(1)
	assert.Equal(t, 10, r.eng.Depth())
	assert.Equal(t, 16, r.drv.Queued())
}

func TestPier_WorkStopsAtBarrierTarget(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()
	require.Equal(t, uint64(4), r.eng.Eve())

	var fired []uint64
	require.True(t, r.p.Barrier("mark", 7, func(eve uint64) { fired = append(fired, eve) }))
	r.drv.Inject(events(10)...)
	r.turn(1)
	assert.Equal(t, 3, r.eng.Count(testutil.KindWork)-1, "wyrd plus three events")
	assert.Equal(t, 7, r.drv.Queued())

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, uint64(7), r.eng.Eve())
	assert.Zero(t, r.eng.Depth(), "nothing sent past the target")
	assert.Empty(t, fired, "not durable yet")

	r.log.Commit(-1)
	r.turn(1)
	assert.Equal(t, []uint64{7}, fired)
	assert.Equal(t, 7, r.eng.Depth(), "sending resumes once the barrier drains")
	assert.Zero(t, r.drv.Queued())
}

func TestPier_BarrierAlreadyCoveredStopsSending(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(2)...)
	r.turn(1)
	require.Equal(t, 2, r.eng.Depth())

	var fired []uint64
	require.True(t, r.p.Barrier("mark", 5, func(eve uint64) { fired = append(fired, eve) }))
	r.drv.Inject(events(3)...)
	r.turn(1)
	assert.Equal(t, 2, r.eng.Depth(), "target 5 is covered by events in flight")
	assert.Equal(t, 3, r.drv.Queued())

	r.eng.Finish(-1)
	r.turn(1)
	assert.Zero(t, r.eng.Depth())
	assert.Equal(t, 3, r.drv.Queued())

	r.log.Commit(-1)
	r.turn(1)
	assert.Equal(t, []uint64{6}, fired)
	assert.Equal(t, 3, r.eng.Depth())
}

func TestPier_BarrierRefusedOutsideWork(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{})
	assert.False(t, r.p.Barrier("mark", 1, func(uint64) { t.Fatal("fired") }))
}

func TestPier_PeekIDReachesEngine(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.p.Peek(ir.Peek{ID: "scry-1", Path: ir.Path{"x", "a"}}, func(ir.Value, error) {})
	r.p.Peek(ir.Peek{Path: ir.Path{"x", "b"}}, func(ir.Value, error) {})
	r.turn(1)

	out := r.eng.Outstanding()
	require.Len(t, out, 2)
	assert.Equal(t, "scry-1", out[0].Query.ID)
	_, err := uuid.Parse(out[1].Query.ID)
	assert.NoError(t, err, "missing ids are generated")
}

func TestPier_PeeksFillLeftoverBudget(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()
	r.eng.Values["/x/a"] = ir.String("hello")

	var got []ir.Value
	for i := 0; i < 3; i++ {
		r.p.Peek(ir.Peek{Path: ir.Path{"x", "a"}}, func(v ir.Value, err error) {
			require.NoError(t, err)
			got = append(got, v)
		})
	}
	r.drv.Inject(events(1)...)
	r.turn(1)

	assert.Equal(t, []testutil.RequestKind{"work", "peek", "peek", "peek"}, r.lastKinds(4))

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, []ir.Value{ir.String("hello"), ir.String("hello"), ir.String("hello")}, got)
}

func TestPier_GiftsWaitForDurability(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()
	r.eng.Effects = func(ev ir.Event) []ir.Effect {
		return []ir.Effect{{Wire: ev.Wire, Card: ir.Card{Tag: "blit"}}}
	}

	r.drv.Inject(events(3)...)
	r.turn(1)
	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, []uint64{4}, r.drv.DeliveredEves())
	assert.Len(t, r.drv.Completed(), 3)

	for want := uint64(5); want <= 7; want++ {
		r.log.Commit(1)
		r.turn(1)
		eves := r.drv.DeliveredEves()
		assert.Equal(t, want, eves[len(eves)-1])
		assert.LessOrEqual(t, want, r.log.Durable())
	}
	assert.Equal(t, []uint64{4, 5, 6, 7}, r.drv.DeliveredEves())
	assert.Equal(t, uint64(7), r.p.Info().Released)
}

func TestPier_RejectedEventGoesBackToDriver(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(testutil.Event("crash", "term", "1"), testutil.Event("belt", "term", "1"))
	r.turn(1)

	r.eng.Fail(&pier.Goof{Eve: 5, Mote: "exit"})
	r.eng.Finish(-1)
	r.turn(1)

	require.Len(t, r.drv.Bailed(), 1)
	assert.Equal(t, "crash", r.drv.Bailed()[0].Card.Tag)
	require.Len(t, r.drv.Completed(), 1)
	assert.Equal(t, pier.StateWork, r.p.State())

	writes := r.log.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(5), writes[0].Fact.Eve)
}

func TestPier_WorkWriteFailureBails(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(1)...)
	r.turn(1)
	r.eng.Finish(-1)
	r.turn(1)

	r.log.FailWrite(errors.New("enospc"))
	r.turn(1)

	assert.Equal(t, pier.ErrCodeLogWrite, pier.CodeOf(r.p.Err()))
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 1, r.drv.TornDown())
	assert.Equal(t, []uint64{4}, r.drv.DeliveredEves(), "undurable gift dropped")
}

func TestPier_EventsAreStampedInOrder(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(4)...)
	r.turn(1)

	out := r.eng.Outstanding()
	require.Len(t, out, 4)
	for i := 1; i < len(out); i++ {
		assert.Equal(t, int64(pier.Quantum), out[i].Event.Time-out[i-1].Event.Time)
	}
}

func TestPier_PeekOutsideWorkFails(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 3), 0, pier.Options{})

	var got error
	r.p.Peek(ir.Peek{Path: ir.Path{"x"}}, func(_ ir.Value, err error) { got = err })
	assert.NoError(t, got, "never completes synchronously")

	r.turn(1)
	assert.ErrorIs(t, got, pier.ErrNotWorking)
}

// --- barriers and exit ---

func TestPier_GracefulExitDrainsGiftsThenBarriers(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(2)...)
	r.turn(1)
	r.eng.Finish(-1)
	r.turn(1)

	r.p.Exit()
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.Equal(t, 2, r.p.Info().GiftsPending)

	r.drv.Inject(events(1)...)
	r.turn(1)
	assert.Equal(t, 3, r.eng.Count(testutil.KindWork), "nothing sent after exit")
	assert.Zero(t, r.eng.Count(testutil.KindSave), "log still behind the engine")

	r.log.Commit(1)
	r.turn(1)
	assert.Equal(t, []uint64{4, 5}, r.drv.DeliveredEves())
	assert.Zero(t, r.eng.Count(testutil.KindSave))

	r.log.Commit(-1)
	r.turn(1)
	assert.Equal(t, []uint64{4, 5, 6}, r.drv.DeliveredEves())
	assert.Equal(t, 1, r.eng.Count(testutil.KindSave))
	assert.False(t, r.eng.Exited(), "exit barrier waits for the save")
	assert.Zero(t, r.drv.TornDown())

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, 1, r.drv.TornDown())
	assert.True(t, r.eng.Exited())

	r.turn(1)
	assert.True(t, r.log.Closed())
	assert.Equal(t, 0, r.p.ExitCode())
	assert.NoError(t, r.p.Err())
	assert.False(t, r.rx.Turn())
}

func TestPier_ExitBeforeWorkStopsImmediately(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 10), 0, pier.Options{})
	r.log.AutoRead = true
	r.resume(0)
	r.turn(1)
	require.Equal(t, pier.StatePlay, r.p.State())

	r.p.Exit()
	assert.Equal(t, pier.StateDone, r.p.State())

	r.eng.Finish(-1)
	r.turn(2)
	assert.True(t, r.eng.Exited())
	assert.True(t, r.log.Closed())
	assert.Equal(t, 1, r.eng.Count(testutil.KindPlay))
	assert.Zero(t, r.eng.Count(testutil.KindWork), "late play completion does not start wyrd")
}

func TestPier_SaveAndCramInWorkWaitForIdle(t *testing.T) {
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{})
	r.toWork()

	r.drv.Inject(events(1)...)
	r.turn(1)
	require.True(t, r.p.Save())
	require.True(t, r.p.Cram())

	r.drv.Inject(events(1)...)
	r.turn(1)
	assert.Equal(t, 2, r.eng.Count(testutil.KindWork), "only the wyrd and first event")

	r.eng.Finish(-1)
	r.turn(1)
	r.log.Commit(-1)
	r.turn(1)

	kinds := r.eng.Kinds()
	assert.Equal(t, []testutil.RequestKind{"save"}, kinds[2:3])

	r.eng.Finish(-1)
	r.turn(1)
	assert.Equal(t, []testutil.RequestKind{"work", "work", "save", "cram", "work"}, r.eng.Kinds())
}

func TestPier_SaveRefusedBeforePlay(t *testing.T) {
	r := newRig(t, testutil.Facts(1, 3), 0, pier.Options{})
	assert.False(t, r.p.Save())
	assert.False(t, r.p.Cram())
}

func TestPier_OneShotScry(t *testing.T) {
	var got ir.Value
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{
		Scry:   ir.Path{"x", "answer"},
		OnScry: func(v ir.Value, err error) { got = v },
	})
	r.eng.Values["/x/answer"] = ir.Int(42)
	r.eng.Auto = true
	r.log.AutoCommit = true

	r.resume(3)
	r.turn(6)

	assert.Equal(t, ir.Int(42), got)
	assert.Zero(t, r.drv.Started(), "drivers stay down")
	assert.Equal(t, pier.StateDone, r.p.State())
	assert.True(t, r.log.Closed())
	assert.Equal(t, 0, r.p.ExitCode())
}

func TestPier_OnLiveFiresOnce(t *testing.T) {
	lives := 0
	r := newRig(t, testutil.Lifecycle(3), 3, pier.Options{OnLive: func() { lives++ }})
	r.drv.Lazy = true
	r.toWork()
	assert.False(t, r.p.Info().Live)

	r.drv.SetLive()
	r.rx.Wake()
	r.turn(3)
	assert.Equal(t, 1, lives)
	assert.True(t, r.p.Info().Live)
}
