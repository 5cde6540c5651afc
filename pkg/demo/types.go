package demo

import (
	"time"

	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// FrozenInstant is the timestamp every event carries while time is frozen.
var FrozenInstant = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

// ViewModeKey is the prefs key the chosen view mode is persisted under.
const ViewModeKey = "sita-os:view-mode"

// ActivityCap is the size of the activity ring buffer.
const ActivityCap = 50

// ViewMode selects the view skin.
type ViewMode string

const (
	ViewAuto     ViewMode = "auto"
	ViewDesktop  ViewMode = "desktop"
	ViewMobile   ViewMode = "mobile"
	ViewGlasses  ViewMode = "glasses"
	ViewHologram ViewMode = "hologram"
)

func (v ViewMode) Valid() bool {
	switch v {
	case ViewAuto, ViewDesktop, ViewMobile, ViewGlasses, ViewHologram:
		return true
	}
	return false
}

// IntelTab selects the intelligence panel.
type IntelTab string

const (
	TabLedger      IntelTab = "ledger"
	TabReliability IntelTab = "reliability"
	TabRegime      IntelTab = "regime"
	TabDecay       IntelTab = "decay"
	TabDrift       IntelTab = "drift"
	TabExperiments IntelTab = "experiments"
)

func (t IntelTab) Valid() bool {
	switch t {
	case TabLedger, TabReliability, TabRegime, TabDecay, TabDrift, TabExperiments:
		return true
	}
	return false
}

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityPolicy  ActivityType = "policy"
	ActivityTool    ActivityType = "tool"
	ActivityReceipt ActivityType = "receipt"
	ActivitySystem  ActivityType = "system"
)

// ActivityEntry is one line of the activity log. Seq increases
// monotonically for the life of the store and survives eviction.
type ActivityEntry struct {
	Seq       uint64       `json:"seq"`
	Type      ActivityType `json:"type"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}

// Settings is the per-session demo configuration.
type Settings struct {
	Seed          int                    `json:"seed" yaml:"seed"`
	FrozenTime    bool                   `json:"frozenTime" yaml:"frozen_time"`
	ConnectorMode workflow.ConnectorMode `json:"connectorMode" yaml:"connector_mode"`
	DebugOverlay  bool                   `json:"debugOverlay" yaml:"debug_overlay"`
	ShadowMode    bool                   `json:"shadowMode" yaml:"shadow_mode"`
}

// DefaultSettings returns the settings a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{
		Seed:          42,
		FrozenTime:    true,
		ConnectorMode: workflow.ModeSim,
	}
}

// SettingsPatch updates the non-nil fields of Settings.
type SettingsPatch struct {
	Seed          *int                    `json:"seed,omitempty"`
	FrozenTime    *bool                   `json:"frozenTime,omitempty"`
	ConnectorMode *workflow.ConnectorMode `json:"connectorMode,omitempty"`
	DebugOverlay  *bool                   `json:"debugOverlay,omitempty"`
	ShadowMode    *bool                   `json:"shadowMode,omitempty"`
}

func (s Settings) apply(p SettingsPatch) Settings {
	if p.Seed != nil {
		s.Seed = *p.Seed
	}
	if p.FrozenTime != nil {
		s.FrozenTime = *p.FrozenTime
	}
	if p.ConnectorMode != nil && p.ConnectorMode.Valid() {
		s.ConnectorMode = *p.ConnectorMode
	}
	if p.DebugOverlay != nil {
		s.DebugOverlay = *p.DebugOverlay
	}
	if p.ShadowMode != nil {
		s.ShadowMode = *p.ShadowMode
	}
	return s
}

// Snapshot is an immutable copy of the whole session state.
type Snapshot struct {
	Version       uint64             `json:"version"`
	Workflows     []workflow.State   `json:"workflows"`
	Settings      Settings           `json:"settings"`
	Active        workflow.ID        `json:"activeWorkflow,omitempty"`
	ViewMode      ViewMode           `json:"viewMode"`
	Activity      []ActivityEntry    `json:"activity"`
	Narration     string             `json:"narration"`
	Avatar        workflow.Avatar    `json:"avatar"`
	IntelTab      IntelTab           `json:"intelTab"`
	AttackVisible bool               `json:"attackVisible"`
	Completed     bool               `json:"completed"`
	Receipts      []workflow.Receipt `json:"receipts"`
	Autoplay      bool               `json:"autoplay"`
}

// Workflow returns the state of one workflow in the snapshot.
func (s Snapshot) Workflow(id workflow.ID) (workflow.State, bool) {
	for _, st := range s.Workflows {
		if st.ID == id {
			return st, true
		}
	}
	return workflow.State{}, false
}
