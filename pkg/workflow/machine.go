package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/sita/pkg/policy"
	"github.com/Mindburn-Labs/sita/pkg/simrand"
)

// Env carries the session context a transition is evaluated in.
type Env struct {
	Seed         int
	Mode         ConnectorMode
	ShadowMode   bool
	Now          time.Time
	ReceiptCount int // receipts minted across all workflows so far
}

// Effects lists what a transition did, for the session owner to apply to
// its cross-workflow state. A zero Effects means nothing happened.
type Effects struct {
	Changed    bool
	From       Step
	To         Step
	Gates      []PolicyGate
	ToolCalls  []ToolCall
	Receipt    *Receipt
	Narration  string
	Avatar     Avatar
	ShowAttack bool
	// AutoChain is set when entering To registers a continuation.
	AutoChain bool
}

// Machine applies transitions. It is stateless apart from the compiled
// gate rules and safe for concurrent use.
type Machine struct {
	gates  *policy.Evaluator
	logger *slog.Logger
}

// NewMachine compiles the gate rule catalog.
func NewMachine(logger *slog.Logger) (*Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ev, err := policy.NewEvaluator(Rules(), logger)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return &Machine{gates: ev, logger: logger.With("component", "workflow")}, nil
}

// MustNewMachine is NewMachine for static catalogs; it panics on error.
func MustNewMachine(logger *slog.Logger) *Machine {
	m, err := NewMachine(logger)
	if err != nil {
		panic(err)
	}
	return m
}

// Advance moves a workflow to its next step. Advancing a workflow at its
// terminal step is a no-op; advancing a wire transfer waiting for approval
// performs the approval.
func (m *Machine) Advance(st State, env Env) (State, Effects) {
	p, ok := Lookup(st.ID)
	if !ok {
		return st, Effects{}
	}
	switch st.Step {
	case ReceiptStep:
		return st, Effects{}
	case Approval:
		return m.Approve(st, env)
	case Idle, Scanning, Findings, Approved:
		t, ok := p.Transitions[st.Step]
		if !ok {
			return st, Effects{}
		}
		return m.apply(p, st, t, env)
	}
	return st, Effects{}
}

// Approve records the second signature on a wire transfer waiting in
// Approval. In every other situation it is intentionally a no-op.
func (m *Machine) Approve(st State, env Env) (State, Effects) {
	p, ok := Lookup(st.ID)
	if !ok || !p.RequiresApproval || p.Approval == nil || st.Step != Approval {
		return st, Effects{}
	}
	return m.apply(p, st, *p.Approval, env)
}

func (m *Machine) apply(p Profile, st State, t Transition, env Env) (State, Effects) {
	next := st.Clone()
	for k, v := range cloneData(t.Patch) {
		next.Data[k] = v
	}
	next.Step = t.To

	eff := Effects{
		Changed:    true,
		From:       st.Step,
		To:         t.To,
		Narration:  t.Narration,
		Avatar:     t.Avatar,
		ShowAttack: t.ShowAttack,
	}

	in := policy.Input{
		Workflow: string(st.ID),
		Step:     t.To.String(),
		Data:     next.Data,
		Settings: map[string]any{
			"seed":           env.Seed,
			"connector_mode": string(env.Mode),
			"shadow_mode":    env.ShadowMode,
		},
	}
	for _, rule := range t.Gates {
		g := PolicyGate{
			Verdict:   Verdict(m.gates.Verdict(rule, in)),
			Rule:      rule,
			Timestamp: env.Now,
		}
		next.Gates = append(next.Gates, g)
		eff.Gates = append(eff.Gates, g)
	}

	for _, spec := range t.Tools {
		n := len(next.ToolCalls) + 1
		tc := ToolCall{
			ID:        "tc_" + simrand.SimHash(fmt.Sprintf("%s:%d:%d", st.ID, env.Seed, n)),
			Tool:      spec.Tool,
			Args:      cloneData(spec.Args),
			Result:    spec.Result,
			Timestamp: env.Now,
		}
		next.ToolCalls = append(next.ToolCalls, tc)
		eff.ToolCalls = append(eff.ToolCalls, tc)
	}

	if t.Mint {
		r := Receipt{
			ReceiptID:     "rcpt_" + simrand.SimHash(fmt.Sprintf("%d:%d", env.Seed, env.ReceiptCount+1)),
			CorrelationID: "corr_" + simrand.SimHash(fmt.Sprintf("%s:%d", st.ID, env.Seed)),
			CapabilityID:  p.CapabilityID,
			Mode:          env.Mode,
			CostCents:     p.CostCents,
			Timestamp:     env.Now,
			Workflow:      st.ID,
			Summary:       p.Summary,
		}
		next.Receipts = append(next.Receipts, r)
		eff.Receipt = &r
	}

	_, _, eff.AutoChain = AutoChain(t.To)

	m.logger.Debug("workflow transition",
		"workflow", st.ID,
		"from", st.Step.String(),
		"to", t.To.String(),
		"gates", len(eff.Gates),
	)
	return next, eff
}
