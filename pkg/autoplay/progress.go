package autoplay

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ReportInterval is how often the Reporter samples the player.
const ReportInterval = 300 * time.Millisecond

// Progress is the UI-facing view of an autoplay run.
type Progress struct {
	Playing          bool    `json:"playing"`
	Act              int     `json:"act"`
	ActName          string  `json:"actName"`
	StepInAct        int     `json:"stepInAct"`
	StepsInAct       int     `json:"stepsInAct"`
	Fraction         float64 `json:"fraction"`
	RemainingSeconds float64 `json:"remainingSeconds"`
}

// Compute derives progress from a position. Act and StepInAct are 1-based
// and refer to the most recently fired step, or step 0 before the first
// fires. RemainingSeconds sums the delays not yet delivered, counting the
// pending one in full; a finished run has none left.
func Compute(script []Step, acts []Act, pos Position) Progress {
	total := len(script)
	if total == 0 {
		return Progress{Playing: pos.Playing}
	}
	next := pos.Next
	if next < 0 {
		next = 0
	}
	if next > total {
		next = total
	}

	current := next - 1
	if current < 0 {
		current = 0
	}

	p := Progress{
		Playing:  pos.Playing,
		Fraction: float64(next) / float64(total),
	}
	for i, a := range acts {
		if current >= a.First && current <= a.Last {
			p.Act = i + 1
			p.ActName = a.Name
			p.StepInAct = current - a.First + 1
			p.StepsInAct = a.Last - a.First + 1
			break
		}
	}

	if pos.Playing || next < total {
		var remaining time.Duration
		for i := current; i < total; i++ {
			remaining += script[i].Delay
		}
		p.RemainingSeconds = remaining.Seconds()
	}
	return p
}

// PositionSource is anything that reports a script position.
type PositionSource interface {
	Position() Position
	Script() []Step
}

// Reporter samples a PositionSource on a fixed tick. It can be started and
// stopped independently of the player it observes, and it stops itself at
// the first sample that finds the player no longer playing.
type Reporter struct {
	src      PositionSource
	acts     []Act
	clk      clock.Clock
	interval time.Duration

	mu      sync.Mutex
	latest  Progress
	ticker  *clock.Ticker
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewReporter builds a stopped reporter. A nil clock uses the wall clock.
func NewReporter(src PositionSource, clk clock.Clock) *Reporter {
	if clk == nil {
		clk = clock.New()
	}
	return &Reporter{src: src, acts: Acts(), clk: clk, interval: ReportInterval}
}

// Start begins sampling. Starting a running reporter does nothing.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.ticker = r.clk.Ticker(r.interval)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.latest = Compute(r.src.Script(), r.acts, r.src.Position())
	go r.loop(r.ticker, r.stop, r.done)
}

// Stop ends sampling and waits for the loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.ticker.Stop()
	close(r.stop)
	done := r.done
	r.mu.Unlock()
	<-done
}

// Running reports whether the reporter is sampling.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Latest returns the most recent sample.
func (r *Reporter) Latest() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

func (r *Reporter) loop(t *clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			p := Compute(r.src.Script(), r.acts, r.src.Position())
			r.mu.Lock()
			r.latest = p
			// A Stop followed by a Start may have replaced this run already.
			finished := !p.Playing && r.running && r.stop == stop
			if finished {
				r.running = false
				r.ticker.Stop()
			}
			r.mu.Unlock()
			if finished {
				return
			}
		}
	}
}
