package intelligence

import (
	"math"

	"github.com/Mindburn-Labs/sita/pkg/simrand"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

// RegimePoint is one point of the regime trajectory plot.
type RegimePoint struct {
	Index  int     `json:"index"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Regime string  `json:"regime"`
}

// DecayPoint is one point of the confidence decay curve.
type DecayPoint struct {
	Horizon        int     `json:"horizon"`
	Confidence     float64 `json:"confidence"`
	BelowThreshold bool    `json:"below_threshold"`
}

const (
	trajectoryPoints = 30
	driftOnset       = 20
	decayThreshold   = 0.5
	decayHorizon     = 50
	decayStep        = 2
)

// RegimeTrajectory returns a jittered spiral. Under a wire transfer the tail
// of the spiral is pushed off course and labelled as drift.
func RegimeTrajectory(active workflow.ID, seed int) []RegimePoint {
	points := make([]RegimePoint, trajectoryPoints)
	for i := range points {
		angle := float64(i) * 0.35
		radius := 0.2 + float64(float64(i)*0.025)
		x := float64(radius*simrand.Cos(angle)) + simrand.Jitter(seed, 300+2*i, 0.04)
		y := float64(radius*simrand.Sin(angle)) + simrand.Jitter(seed, 301+2*i, 0.04)
		regime := "nominal"
		if active == workflow.WireTransfer && i > driftOnset {
			d := float64(i - driftOnset)
			x += float64(0.03 * d)
			y -= float64(0.02 * d)
			regime = "drift"
		}
		points[i] = RegimePoint{Index: i, X: x, Y: y, Regime: regime}
	}
	return points
}

// ConfidenceDecay projects reliability forward over a 0..50 horizon.
func ConfidenceDecay(rel ReliabilityState, active workflow.ID) []DecayPoint {
	k := 0.015
	if rel.P < 0.75 {
		k = 0.035
	}
	points := make([]DecayPoint, 0, decayHorizon/decayStep+1)
	for h := 0; h <= decayHorizon; h += decayStep {
		c := rel.P * math.Exp(-k*float64(h))
		if active == workflow.WireTransfer {
			c *= math.Exp(-0.008 * float64(h))
		}
		c = round4(c)
		points = append(points, DecayPoint{
			Horizon:        h,
			Confidence:     c,
			BelowThreshold: c < decayThreshold,
		})
	}
	return points
}
