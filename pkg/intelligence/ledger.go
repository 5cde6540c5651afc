// Package intelligence synthesizes the demo's "system intelligence" panels.
//
// Every function here is a pure function of workflow state and seed. Nothing
// reads the wall clock and nothing is cached, so identical inputs always
// produce identical output. The hashes are simulated integrity markers built
// from simrand.FullHash and carry no cryptographic meaning.
package intelligence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/sita/pkg/simrand"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// ErrBrokenChain is returned by VerifyChain when a ledger link does not hold.
var ErrBrokenChain = errors.New("intelligence: decision ledger chain broken")

// DecisionEvent is one row of the decision ledger.
type DecisionEvent struct {
	Seq        int              `json:"seq"`
	Workflow   workflow.ID      `json:"workflow"`
	Step       workflow.Step    `json:"step"`
	Verdict    workflow.Verdict `json:"verdict,omitempty"`
	Rule       string           `json:"rule,omitempty"`
	Confidence float64          `json:"confidence"`
	Actor      string           `json:"actor"`
	Timestamp  time.Time        `json:"timestamp"`
	PrevHash   string           `json:"prev_hash"`
	RowHash    string           `json:"row_hash"`
}

// ledgerRow is the hashed part of a DecisionEvent.
type ledgerRow struct {
	Seq        int              `json:"seq"`
	Workflow   workflow.ID      `json:"workflow"`
	Step       workflow.Step    `json:"step"`
	Verdict    workflow.Verdict `json:"verdict,omitempty"`
	Rule       string           `json:"rule,omitempty"`
	Confidence float64          `json:"confidence"`
	Actor      string           `json:"actor"`
	Timestamp  time.Time        `json:"timestamp"`
}

func (e DecisionEvent) row() ledgerRow {
	return ledgerRow{
		Seq:        e.Seq,
		Workflow:   e.Workflow,
		Step:       e.Step,
		Verdict:    e.Verdict,
		Rule:       e.Rule,
		Confidence: e.Confidence,
		Actor:      e.Actor,
		Timestamp:  e.Timestamp,
	}
}

// agentActors are the agents that sign ledger rows no human signed.
var agentActors = []string{"agent:sita", "agent:sita.planner", "agent:sita.verifier"}

// DecisionLedger returns one entry per non-idle workflow, in canonical
// workflow order, chained by prev_hash/row_hash from a zero hash.
func DecisionLedger(states []workflow.State, seed int) []DecisionEvent {
	byID := make(map[workflow.ID]workflow.State, len(states))
	for _, st := range states {
		byID[st.ID] = st
	}

	events := []DecisionEvent{}
	prev := simrand.ZeroHash
	for _, id := range workflow.All() {
		st, ok := byID[id]
		if !ok || st.Step == workflow.Idle {
			continue
		}
		seq := len(events)
		ev := DecisionEvent{
			Seq:        seq,
			Workflow:   id,
			Step:       st.Step,
			Confidence: round4(simrand.Between(seed, 100+seq, 0.80, 0.99)),
			Actor:      agentActors[simrand.Pick(seed, 150+seq, len(agentActors))],
			Timestamp:  latestTimestamp(st),
			PrevHash:   prev,
		}
		if g, ok := st.LastGate(); ok {
			ev.Verdict = g.Verdict
			ev.Rule = g.Rule
			if g.Rule == "wire_transfer.dual_signature" {
				ev.Actor = "human:cfo"
			}
		}
		ev.RowHash = rowHash(prev, ev.row())
		events = append(events, ev)
		prev = ev.RowHash
	}
	return events
}

// VerifyChain checks every link and recomputes every row hash.
func VerifyChain(events []DecisionEvent) error {
	prev := simrand.ZeroHash
	for i, ev := range events {
		if ev.PrevHash != prev {
			return fmt.Errorf("%w: entry %d prev_hash mismatch", ErrBrokenChain, i)
		}
		if want := rowHash(prev, ev.row()); ev.RowHash != want {
			return fmt.Errorf("%w: entry %d row_hash mismatch", ErrBrokenChain, i)
		}
		prev = ev.RowHash
	}
	return nil
}

func rowHash(prev string, row ledgerRow) string {
	raw, err := json.Marshal(row)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", row))
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		canon = raw
	}
	return simrand.FullHash(prev + "|" + string(canon))
}

func latestTimestamp(st workflow.State) time.Time {
	var ts time.Time
	if g, ok := st.LastGate(); ok {
		ts = g.Timestamp
	}
	if n := len(st.Receipts); n > 0 && st.Receipts[n-1].Timestamp.After(ts) {
		ts = st.Receipts[n-1].Timestamp
	}
	return ts
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
