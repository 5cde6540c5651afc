// Package workflow defines the three scripted demo workflows and the state
// machine that drives them through their fixed step sequence.
package workflow

import (
	"fmt"
	"time"
)

// ID identifies one of the scripted workflows.
type ID string

const (
	RevenueLeak   ID = "revenue-leak"
	WireTransfer  ID = "wire-transfer"
	BoardBriefing ID = "board-briefing"
)

// All returns the workflow ids in their canonical iteration order.
func All() []ID {
	return []ID{RevenueLeak, WireTransfer, BoardBriefing}
}

// Valid reports whether id names a known workflow.
func (id ID) Valid() bool {
	switch id {
	case RevenueLeak, WireTransfer, BoardBriefing:
		return true
	}
	return false
}

// Step is a position in the workflow step order.
type Step int

const (
	Idle Step = iota
	Scanning
	Findings
	Approval
	Approved
	ReceiptStep
)

func (s Step) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Findings:
		return "findings"
	case Approval:
		return "approval"
	case Approved:
		return "approved"
	case ReceiptStep:
		return "receipt"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// ParseStep is the inverse of Step.String.
func ParseStep(s string) (Step, error) {
	for st := Idle; st <= ReceiptStep; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Idle, fmt.Errorf("unknown step %q", s)
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(b []byte) error {
	st, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Verdict is the outcome of a simulated policy gate.
type Verdict string

const (
	Pass     Verdict = "PASS"
	Deny     Verdict = "DENY"
	Escalate Verdict = "ESCALATE"
)

// ConnectorMode is the cosmetic connector label stamped on receipts.
type ConnectorMode string

const (
	ModeSim    ConnectorMode = "SIM"
	ModeShadow ConnectorMode = "SHADOW"
	ModeReal   ConnectorMode = "REAL"
)

// Valid reports whether m is one of the known connector modes.
func (m ConnectorMode) Valid() bool {
	switch m {
	case ModeSim, ModeShadow, ModeReal:
		return true
	}
	return false
}

// Avatar is the display state of the assistant orb.
type Avatar string

const (
	AvatarIdle     Avatar = "idle"
	AvatarThinking Avatar = "thinking"
	AvatarSpeaking Avatar = "speaking"
	AvatarAlert    Avatar = "alert"
	AvatarSuccess  Avatar = "success"
)

// Valid reports whether a is a known avatar state.
func (a Avatar) Valid() bool {
	switch a {
	case AvatarIdle, AvatarThinking, AvatarSpeaking, AvatarAlert, AvatarSuccess:
		return true
	}
	return false
}

// PolicyGate records one simulated authorization checkpoint.
type PolicyGate struct {
	Verdict   Verdict   `json:"verdict"`
	Rule      string    `json:"rule"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall records one simulated connector invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Result    string         `json:"result"`
	Timestamp time.Time      `json:"timestamp"`
}

// Receipt is the simulated audit record minted when a workflow completes.
// Receipts are never mutated after minting.
type Receipt struct {
	ReceiptID     string        `json:"receiptId"`
	CorrelationID string        `json:"correlationId"`
	CapabilityID  string        `json:"capabilityId"`
	Mode          ConnectorMode `json:"mode"`
	CostCents     int           `json:"costCents"`
	Timestamp     time.Time     `json:"timestamp"`
	Workflow      ID            `json:"workflow"`
	Summary       string        `json:"summary"`
}

// State is the full state of one workflow. Receipts is non-empty exactly
// when Step is ReceiptStep.
type State struct {
	ID        ID             `json:"id"`
	Step      Step           `json:"step"`
	Data      map[string]any `json:"data"`
	Gates     []PolicyGate   `json:"policyGates"`
	ToolCalls []ToolCall     `json:"toolCalls"`
	Receipts  []Receipt      `json:"receipts"`
}

// Initial returns the idle state of a workflow. Unknown ids get an empty bag.
func Initial(id ID) State {
	st := State{
		ID:        id,
		Step:      Idle,
		Data:      map[string]any{},
		Gates:     []PolicyGate{},
		ToolCalls: []ToolCall{},
		Receipts:  []Receipt{},
	}
	if p, ok := Lookup(id); ok {
		st.Data = cloneData(p.InitialData)
	}
	return st
}

// LastGate returns the most recent gate, if any.
func (s State) LastGate() (PolicyGate, bool) {
	if len(s.Gates) == 0 {
		return PolicyGate{}, false
	}
	return s.Gates[len(s.Gates)-1], true
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Data = cloneData(s.Data)
	out.Gates = make([]PolicyGate, len(s.Gates))
	copy(out.Gates, s.Gates)
	out.ToolCalls = make([]ToolCall, len(s.ToolCalls))
	for i, tc := range s.ToolCalls {
		tc.Args = cloneData(tc.Args)
		out.ToolCalls[i] = tc
	}
	out.Receipts = make([]Receipt, len(s.Receipts))
	copy(out.Receipts, s.Receipts)
	return out
}

func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string(nil), vv...)
		case map[string]any:
			out[k] = cloneData(vv)
		default:
			out[k] = v
		}
	}
	return out
}
