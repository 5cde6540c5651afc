package autoplay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// SettleDelay is the pause between the reset and the first step.
const SettleDelay = 800 * time.Millisecond

// Target is the store surface the script drives.
type Target interface {
	SetActiveWorkflow(id workflow.ID)
	AdvanceWorkflow(id workflow.ID)
	ApproveWire()
	SetIntelTab(tab demo.IntelTab)
	SetNarration(text string)
	DismissAttack()
	ResetDemo()
	SetAutoplayActive(on bool)
}

// Options configures a Player.
type Options struct {
	Clock  clock.Clock
	Script []Step
	Settle time.Duration
	// Scale multiplies every delay; zero means 1.
	Scale  float64
	Logger *slog.Logger
	Meter  metric.Meter
	// OnStep is called after each step is applied. It must not call
	// Start or Stop.
	OnStep func(index int, step Step)
}

// Position is the scheduler's progress through the script.
type Position struct {
	Next    int  `json:"next"`
	Total   int  `json:"total"`
	Playing bool `json:"playing"`
}

// Player runs the script against a Target with exactly one timer in
// flight. It implements demo.Director.
type Player struct {
	target Target
	clk    clock.Clock
	script []Step
	settle time.Duration
	scale  float64
	onStep func(int, Step)
	logger *slog.Logger
	steps  metric.Int64Counter

	// ctlMu serializes Start and Stop; applyMu serializes step application.
	ctlMu   sync.Mutex
	applyMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	timer   *clock.Timer
	next    int
	playing bool
}

var _ demo.Director = (*Player)(nil)

// NewPlayer builds a stopped player.
func NewPlayer(target Target, opts Options) *Player {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Script == nil {
		opts.Script = Script()
	}
	if opts.Settle <= 0 {
		opts.Settle = SettleDelay
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("sita.autoplay")
	}
	steps, err := opts.Meter.Int64Counter("sita.autoplay.steps", metric.WithDescription("Autoplay steps fired"))
	if err != nil {
		steps = noop.Int64Counter{}
	}
	return &Player{
		target: target,
		clk:    opts.Clock,
		script: opts.Script,
		settle: opts.Settle,
		scale:  opts.Scale,
		onStep: opts.OnStep,
		logger: opts.Logger.With("component", "autoplay"),
		steps:  steps,
	}
}

// Start resets the demo, waits the settle delay, then plays from step 0.
// Starting while playing restarts.
func (p *Player) Start() {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()

	p.stop()
	p.target.ResetDemo()
	p.target.SetAutoplayActive(true)

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.next = 0
	p.playing = true
	p.timer = p.clk.AfterFunc(p.scaled(p.settle), func() { p.fire(gen) })
	p.mu.Unlock()

	p.logger.Info("autoplay started", "steps", len(p.script))
}

// Stop cancels the pending step and freezes the demo as it is.
func (p *Player) Stop() {
	p.ctlMu.Lock()
	defer p.ctlMu.Unlock()
	if p.stop() {
		p.logger.Info("autoplay stopped")
	}
}

func (p *Player) stop() bool {
	p.mu.Lock()
	was := p.playing
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.playing = false
	p.mu.Unlock()

	// Wait out a step that was already being applied.
	p.applyMu.Lock()
	p.applyMu.Unlock() //nolint:staticcheck // barrier

	if was {
		p.target.SetAutoplayActive(false)
	}
	return was
}

// Playing reports whether a run is in progress.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position reports progress through the script.
func (p *Player) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Position{Next: p.next, Total: len(p.script), Playing: p.playing}
}

// Script returns the script the player runs.
func (p *Player) Script() []Step {
	return p.script
}

func (p *Player) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * p.scale)
}

func (p *Player) fire(gen uint64) {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	if !p.playing || gen != p.gen || p.next >= len(p.script) {
		p.mu.Unlock()
		return
	}
	i := p.next
	p.next++
	p.timer = nil
	p.mu.Unlock()

	st := p.script[i]
	for _, a := range st.Actions {
		p.apply(a)
	}
	p.steps.Add(context.Background(), 1, metric.WithAttributes(attribute.Int("step", i)))
	p.logger.Debug("autoplay step", "index", i, "actions", len(st.Actions))
	if p.onStep != nil {
		p.onStep(i, st)
	}

	p.mu.Lock()
	if !p.playing || gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.next >= len(p.script) {
		p.playing = false
		p.gen++
		p.mu.Unlock()
		p.target.SetAutoplayActive(false)
		p.logger.Info("autoplay finished")
		return
	}
	p.timer = p.clk.AfterFunc(p.scaled(st.Delay), func() { p.fire(gen) })
	p.mu.Unlock()
}

func (p *Player) apply(a Action) {
	switch a.Kind {
	case ActionStart:
		p.target.SetActiveWorkflow(a.Workflow)
		p.target.AdvanceWorkflow(a.Workflow)
	case ActionAdvance:
		p.target.AdvanceWorkflow(a.Workflow)
	case ActionApprove:
		p.target.ApproveWire()
	case ActionBack:
		p.target.SetActiveWorkflow("")
	case ActionTab:
		p.target.SetIntelTab(a.Tab)
	case ActionNarrate:
		p.target.SetNarration(a.Text)
	case ActionDismissAttack:
		p.target.DismissAttack()
	}
}
