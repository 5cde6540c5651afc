package intelligence

import "github.com/Mindburn-Labs/sita/pkg/workflow"

// Panels bundles every derived panel for one snapshot.
type Panels struct {
	Ledger      []DecisionEvent  `json:"ledger"`
	Reliability ReliabilityState `json:"reliability"`
	Regime      []RegimePoint    `json:"regime"`
	Decay       []DecayPoint     `json:"decay"`
	Drift       []DriftScenario  `json:"drift"`
	Experiments []Experiment     `json:"experiments"`
}

// Build derives all panels. The reliability and decay panels follow the
// active workflow, or the first workflow when none is active.
func Build(states []workflow.State, active workflow.ID, seed int) Panels {
	focus := workflow.Initial(workflow.RevenueLeak)
	if len(states) > 0 {
		focus = states[0]
	}
	for _, st := range states {
		if st.ID == active {
			focus = st
			break
		}
	}
	rel := Reliability(focus, seed)
	return Panels{
		Ledger:      DecisionLedger(states, seed),
		Reliability: rel,
		Regime:      RegimeTrajectory(active, seed),
		Decay:       ConfidenceDecay(rel, active),
		Drift:       DriftScenarios(),
		Experiments: Experiments(),
	}
}
