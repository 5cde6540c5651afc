package intelligence

import (
	"math"

	"github.com/Mindburn-Labs/sita/pkg/simrand"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// FailureMode labels the dominant risk at a reliability level.
type FailureMode string

const (
	FailureNone        FailureMode = "none"
	FailureCalibration FailureMode = "calibration"
	FailureDrift       FailureMode = "drift"
)

// ReliabilityState is the reliability panel for one workflow.
type ReliabilityState struct {
	Workflow    workflow.ID   `json:"workflow"`
	Step        workflow.Step `json:"step"`
	P           float64       `json:"p"`
	Autonomy    int           `json:"autonomy"`
	FailureMode FailureMode   `json:"failure_mode"`
	Samples     []float64     `json:"samples"`
}

const sampleCount = 12

// baseReliability returns the table probability of a step.
func baseReliability(s workflow.Step) float64 {
	switch s {
	case workflow.Idle:
		return 0.92
	case workflow.Scanning:
		return 0.88
	case workflow.Findings:
		return 0.81
	case workflow.Approval:
		return 0.68
	case workflow.Approved:
		return 0.86
	case workflow.ReceiptStep:
		return 0.95
	}
	return 0.92
}

// Reliability derives the reliability panel from a workflow's step.
func Reliability(st workflow.State, seed int) ReliabilityState {
	p := baseReliability(st.Step)
	samples := make([]float64, sampleCount)
	for i := range samples {
		v := p + simrand.Jitter(seed, 200+i, 0.06)
		samples[i] = round4(math.Min(1, math.Max(0, v)))
	}
	return ReliabilityState{
		Workflow:    st.ID,
		Step:        st.Step,
		P:           p,
		Autonomy:    autonomyLevel(p),
		FailureMode: failureMode(p),
		Samples:     samples,
	}
}

func autonomyLevel(p float64) int {
	switch {
	case p > 0.85:
		return 2
	case p > 0.7:
		return 1
	default:
		return 0
	}
}

func failureMode(p float64) FailureMode {
	switch {
	case p < 0.7:
		return FailureDrift
	case p < 0.8:
		return FailureCalibration
	default:
		return FailureNone
	}
}
