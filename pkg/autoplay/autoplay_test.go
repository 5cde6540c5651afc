package autoplay_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/sita/pkg/autoplay"
	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

type rig struct {
	mock   *clock.Mock
	store  *demo.Store
	player *autoplay.Player

	mu    sync.Mutex
	fired []int
	busy  int32
	clash int32
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{mock: clock.NewMock()}
	r.store = demo.NewStore(demo.Options{Clock: r.mock})
	r.player = autoplay.NewPlayer(r.store, autoplay.Options{
		Clock: r.mock,
		OnStep: func(i int, _ autoplay.Step) {
			if atomic.AddInt32(&r.busy, 1) != 1 {
				atomic.StoreInt32(&r.clash, 1)
			}
			r.mu.Lock()
			r.fired = append(r.fired, i)
			r.mu.Unlock()
			atomic.AddInt32(&r.busy, -1)
		},
	})
	r.store.AttachDirector(r.player)
	t.Cleanup(func() {
		r.player.Stop()
		r.store.Close()
	})
	return r
}

func (r *rig) firedSteps() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.fired...)
}

// run advances the mock clock until cond holds.
func (r *rig) run(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mock.Add(250 * time.Millisecond)
		return cond()
	}, 15*time.Second, 2*time.Millisecond)
}

func TestScriptShape(t *testing.T) {
	script := autoplay.Script()
	require.Len(t, script, 24)
	for i, st := range script {
		assert.NotEmpty(t, st.Actions, "step %d", i)
	}

	acts := autoplay.Acts()
	require.Len(t, acts, 4)
	assert.Equal(t, 0, acts[0].First)
	assert.Equal(t, 23, acts[3].Last)
	for i := 1; i < len(acts); i++ {
		assert.Equal(t, acts[i-1].Last+1, acts[i].First)
	}
	assert.Equal(t, []int{0, 6, 14, 20}, []int{acts[0].First, acts[1].First, acts[2].First, acts[3].First})

	script[0].Actions[0].Text = "changed"
	assert.NotEqual(t, "changed", autoplay.Script()[0].Actions[0].Text)
}

func TestPlayer_FiresAllStepsInOrder(t *testing.T) {
	r := newRig(t)
	r.store.AdvanceWorkflow(workflow.RevenueLeak)

	r.store.StartAutoplay()
	snap := r.store.Snapshot()
	assert.True(t, snap.Autoplay)
	for _, st := range snap.Workflows {
		assert.Equal(t, workflow.Idle, st.Step)
	}

	r.mock.Add(700 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, r.firedSteps())

	r.run(t, func() bool { return !r.player.Playing() })

	want := make([]int, 24)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, r.firedSteps())
	assert.Zero(t, atomic.LoadInt32(&r.clash))

	snap = r.store.Snapshot()
	assert.False(t, snap.Autoplay)
	assert.True(t, snap.Completed)
	assert.Len(t, snap.Receipts, 3)
	for _, st := range snap.Workflows {
		assert.Equal(t, workflow.ReceiptStep, st.Step, st.ID)
	}
	wire, _ := snap.Workflow(workflow.WireTransfer)
	var rules []string
	for _, g := range wire.Gates {
		rules = append(rules, g.Rule)
	}
	assert.Contains(t, rules, "wire_transfer.dual_signature")
	assert.Equal(t, "That is SITA OS.", snap.Narration)
	assert.Equal(t, autoplay.Position{Next: 24, Total: 24}, r.player.Position())
}

func TestPlayer_StopLeavesNoFurtherSteps(t *testing.T) {
	r := newRig(t)
	r.player.Start()
	r.run(t, func() bool { return r.player.Position().Next >= 10 })

	r.player.Stop()
	n := len(r.firedSteps())
	before := r.store.Snapshot()
	assert.False(t, before.Autoplay)

	for i := 0; i < 40; i++ {
		r.mock.Add(time.Second)
	}
	time.Sleep(20 * time.Millisecond)

	assert.Len(t, r.firedSteps(), n)
	assert.False(t, r.player.Playing())
	assert.Equal(t, n, r.player.Position().Next)
}

func TestResetDemo_StopsPlayer(t *testing.T) {
	r := newRig(t)
	r.store.StartAutoplay()
	r.run(t, func() bool { return r.player.Position().Next >= 3 })

	r.store.ResetDemo()
	assert.False(t, r.player.Playing())
	n := len(r.firedSteps())

	for i := 0; i < 20; i++ {
		r.mock.Add(time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, r.firedSteps(), n)

	snap := r.store.Snapshot()
	for _, st := range snap.Workflows {
		assert.Equal(t, workflow.Idle, st.Step)
	}
	assert.False(t, snap.Autoplay)
}

func TestPlayer_RestartBeginsAgain(t *testing.T) {
	r := newRig(t)
	r.player.Start()
	r.run(t, func() bool { return r.player.Position().Next >= 5 })

	r.player.Start()
	assert.Equal(t, 0, r.player.Position().Next)
	assert.True(t, r.player.Playing())
	assert.Equal(t, workflow.Idle, r.store.Snapshot().Workflows[0].Step)
}

func TestCompute(t *testing.T) {
	script := autoplay.Script()
	acts := autoplay.Acts()
	var total time.Duration
	for _, st := range script {
		total += st.Delay
	}

	p := autoplay.Compute(script, acts, autoplay.Position{Next: 0, Total: 24, Playing: true})
	assert.Equal(t, 1, p.Act)
	assert.Equal(t, 1, p.StepInAct)
	assert.Equal(t, 6, p.StepsInAct)
	assert.Equal(t, 0.0, p.Fraction)
	assert.InDelta(t, total.Seconds(), p.RemainingSeconds, 1e-9)

	p = autoplay.Compute(script, acts, autoplay.Position{Next: 8, Total: 24, Playing: true})
	assert.Equal(t, 2, p.Act)
	assert.Equal(t, "Wire transfer", p.ActName)
	assert.Equal(t, 2, p.StepInAct)
	assert.Equal(t, 8, p.StepsInAct)
	assert.InDelta(t, 8.0/24.0, p.Fraction, 1e-12)
	var rest time.Duration
	for _, st := range script[7:] {
		rest += st.Delay
	}
	assert.InDelta(t, rest.Seconds(), p.RemainingSeconds, 1e-9)

	p = autoplay.Compute(script, acts, autoplay.Position{Next: 21, Total: 24, Playing: true})
	assert.Equal(t, 4, p.Act)
	assert.Equal(t, 1, p.StepInAct)

	p = autoplay.Compute(script, acts, autoplay.Position{Next: 24, Total: 24})
	assert.Equal(t, 4, p.Act)
	assert.Equal(t, 4, p.StepInAct)
	assert.Equal(t, 1.0, p.Fraction)
	assert.Zero(t, p.RemainingSeconds)
	assert.False(t, p.Playing)

	assert.Equal(t, autoplay.Progress{}, autoplay.Compute(nil, acts, autoplay.Position{}))
}

type fakeSource struct {
	mu  sync.Mutex
	pos autoplay.Position
}

func (f *fakeSource) set(p autoplay.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = p
}

func (f *fakeSource) Position() autoplay.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeSource) Script() []autoplay.Step { return autoplay.Script() }

func TestReporter_StartStopIndependently(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{pos: autoplay.Position{Next: 2, Total: 24, Playing: true}}
	rep := autoplay.NewReporter(src, mock)

	rep.Start()
	rep.Start()
	assert.True(t, rep.Running())
	assert.Equal(t, 1, rep.Latest().Act)

	src.set(autoplay.Position{Next: 15, Total: 24, Playing: true})
	require.Eventually(t, func() bool {
		mock.Add(autoplay.ReportInterval)
		return rep.Latest().Act == 3
	}, 2*time.Second, 5*time.Millisecond)

	rep.Stop()
	rep.Stop()
	assert.False(t, rep.Running())

	src.set(autoplay.Position{Next: 22, Total: 24, Playing: true})
	mock.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, rep.Latest().Act)

	rep.Start()
	defer rep.Stop()
	assert.Equal(t, 4, rep.Latest().Act)
}

func TestReporter_StopsWhenPlayerFinishes(t *testing.T) {
	mock := clock.NewMock()
	src := &fakeSource{pos: autoplay.Position{Next: 23, Total: 24, Playing: true}}
	rep := autoplay.NewReporter(src, mock)

	rep.Start()
	require.True(t, rep.Running())

	src.set(autoplay.Position{Next: 24, Total: 24, Playing: false})
	require.Eventually(t, func() bool {
		mock.Add(autoplay.ReportInterval)
		return !rep.Running()
	}, 2*time.Second, 5*time.Millisecond)

	latest := rep.Latest()
	assert.False(t, latest.Playing)
	assert.Equal(t, 1.0, latest.Fraction)

	// Stop after a self-stop is a no-op and a new run samples again.
	rep.Stop()
	src.set(autoplay.Position{Next: 2, Total: 24, Playing: true})
	rep.Start()
	defer rep.Stop()
	assert.True(t, rep.Running())
	assert.Equal(t, 1, rep.Latest().Act)
}
