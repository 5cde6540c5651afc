// Package autoplay replays the cinematic walkthrough of the demo: a fixed
// script of timed steps applied to a session store by a single scheduler.
package autoplay

import (
	"fmt"
	"time"

	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// ActionKind enumerates what a script step can do.
type ActionKind int

const (
	ActionStart ActionKind = iota
	ActionAdvance
	ActionApprove
	ActionBack
	ActionTab
	ActionNarrate
	ActionDismissAttack
)

func (k ActionKind) String() string {
	switch k {
	case ActionStart:
		return "start"
	case ActionAdvance:
		return "advance"
	case ActionApprove:
		return "approve"
	case ActionBack:
		return "back"
	case ActionTab:
		return "tab"
	case ActionNarrate:
		return "narrate"
	case ActionDismissAttack:
		return "dismiss_attack"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Action is one declarative instruction.
type Action struct {
	Kind     ActionKind
	Workflow workflow.ID
	Tab      demo.IntelTab
	Text     string
}

// Step is a group of actions applied together, followed by Delay before
// the next step fires.
type Step struct {
	Actions []Action
	Delay   time.Duration
}

// Act is an inclusive range of step indices shown as one chapter.
type Act struct {
	Name  string
	First int
	Last  int
}

func start(id workflow.ID) Action   { return Action{Kind: ActionStart, Workflow: id} }
func advance(id workflow.ID) Action { return Action{Kind: ActionAdvance, Workflow: id} }
func approve() Action               { return Action{Kind: ActionApprove, Workflow: workflow.WireTransfer} }
func back() Action                  { return Action{Kind: ActionBack} }
func tab(t demo.IntelTab) Action    { return Action{Kind: ActionTab, Tab: t} }
func narrate(text string) Action    { return Action{Kind: ActionNarrate, Text: text} }
func dismissAttack() Action         { return Action{Kind: ActionDismissAttack} }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

var script = []Step{
	// Act I: revenue leak
	{Actions: []Action{narrate("Meet SITA. Three workflows, one governed runtime.")}, Delay: ms(3000)},
	{Actions: []Action{start(workflow.RevenueLeak)}, Delay: ms(2500)},
	{Actions: []Action{advance(workflow.RevenueLeak)}, Delay: ms(2500)},
	{Actions: []Action{tab(demo.TabReliability)}, Delay: ms(2000)},
	{Actions: []Action{advance(workflow.RevenueLeak)}, Delay: ms(3000)},
	{Actions: []Action{tab(demo.TabLedger), back()}, Delay: ms(2000)},

	// Act II: wire transfer
	{Actions: []Action{narrate("Next, a $12.5M wire to a new counterparty.")}, Delay: ms(2500)},
	{Actions: []Action{start(workflow.WireTransfer)}, Delay: ms(2500)},
	{Actions: []Action{advance(workflow.WireTransfer)}, Delay: ms(3000)},
	{Actions: []Action{tab(demo.TabRegime)}, Delay: ms(2500)},
	{Actions: []Action{advance(workflow.WireTransfer)}, Delay: ms(3500)},
	{Actions: []Action{dismissAttack(), narrate("Policy held. One signature is not enough.")}, Delay: ms(3000)},
	{Actions: []Action{approve()}, Delay: ms(3000)},
	{Actions: []Action{tab(demo.TabDecay), back()}, Delay: ms(2500)},

	// Act III: board briefing
	{Actions: []Action{narrate("Last, the quarterly board briefing.")}, Delay: ms(2000)},
	{Actions: []Action{start(workflow.BoardBriefing)}, Delay: ms(2500)},
	{Actions: []Action{advance(workflow.BoardBriefing)}, Delay: ms(2500)},
	{Actions: []Action{tab(demo.TabDrift)}, Delay: ms(2500)},
	{Actions: []Action{advance(workflow.BoardBriefing)}, Delay: ms(3000)},
	{Actions: []Action{back(), tab(demo.TabExperiments)}, Delay: ms(2500)},

	// Act IV: recap
	{Actions: []Action{tab(demo.TabLedger), narrate("Every decision is chained in the ledger.")}, Delay: ms(3000)},
	{Actions: []Action{narrate("Three receipts. No unreviewed actions.")}, Delay: ms(3000)},
	{Actions: []Action{tab(demo.TabReliability)}, Delay: ms(2500)},
	{Actions: []Action{narrate("That is SITA OS.")}, Delay: 0},
}

var acts = []Act{
	{Name: "Revenue leak", First: 0, Last: 5},
	{Name: "Wire transfer", First: 6, Last: 13},
	{Name: "Board briefing", First: 14, Last: 19},
	{Name: "Recap", First: 20, Last: 23},
}

// Script returns a copy of the cinematic script.
func Script() []Step {
	out := make([]Step, len(script))
	for i, st := range script {
		out[i] = Step{Actions: append([]Action(nil), st.Actions...), Delay: st.Delay}
	}
	return out
}

// Acts returns a copy of the act boundaries.
func Acts() []Act {
	return append([]Act(nil), acts...)
}
