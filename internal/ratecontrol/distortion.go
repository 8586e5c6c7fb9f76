// Package ratecontrol implements PCRD-opt: per-block slope convexification,
// a Lagrangian-λ search across blocks, strict-budget back-off, and
// multi-layer formation from an increasing target-rate sequence.
package ratecontrol

import "math"

// DistortionEstimator selects how a block's per-pass distortion figures
// are interpreted before convexification and layer formation.
type DistortionEstimator int

const (
	// NormBased takes PassPoint.CumulativeDistortion as already being
	// Σ(new_bit·2^plane)², the figure bitplane.PassDescriptor reports,
	// scaled by the block's subband gain.
	NormBased DistortionEstimator = iota
	// MSEBased treats CumulativeDistortion as a norm-domain figure and
	// maps it toward a reconstruction mean-squared-error estimate by
	// scaling with the square of the block's dequantization step size
	// (StepSize in Block) — the nearest approximation to a trial
	// dequantization available without the DWT/quantization stage this
	// core excludes.
	MSEBased
	// Simplified uses a magnitude-change proxy (the square root of the
	// norm-domain figure) — cheaper to reason about and intentionally
	// coarser, for callers that only need relative pass ordering.
	Simplified
)

func (d DistortionEstimator) String() string {
	switch d {
	case NormBased:
		return "norm_based"
	case MSEBased:
		return "mse_based"
	case Simplified:
		return "simplified"
	default:
		return "unknown"
	}
}

// PassPoint is one block's cumulative rate/distortion figure through a
// given pass, plus the incremental slope spec.md's rate controller
// convexifies over.
type PassPoint struct {
	CumulativeRate       int
	CumulativeDistortion float64
	Slope                float64
}

// Block is one code-block's contribution to the rate-control problem: an
// identifier for layer-contribution bookkeeping, its ordered pass points,
// and the per-block weighting the distortion estimators use.
type Block struct {
	ID string

	// Passes holds one PassPoint per coding pass, in pass order,
	// cumulative rate/distortion already computed in norm_based terms
	// (as bitplane.PassDescriptor reports them).
	Passes []PassPoint

	// SubbandGain weights NormBased/MSEBased distortion (the standard's
	// per-subband energy-gain factor); zero or negative defaults to 1.
	SubbandGain float64

	// StepSize is the block's dequantization step size, used only by
	// MSEBased; zero or negative defaults to 1.
	StepSize float64
}

func (b Block) gain() float64 {
	if b.SubbandGain <= 0 {
		return 1
	}
	return b.SubbandGain
}

func (b Block) stepSize() float64 {
	if b.StepSize <= 0 {
		return 1
	}
	return b.StepSize
}

// applyEstimator returns a copy of blocks with each PassPoint's distortion
// and slope recomputed under the chosen estimator. Rate figures are
// estimator-independent; only distortion (and therefore slope) changes.
func applyEstimator(blocks []Block, estimator DistortionEstimator) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		gain := b.gain()
		step := b.stepSize()

		passes := make([]PassPoint, len(b.Passes))
		prevRate, prevDist := 0, 0.0
		for j, p := range b.Passes {
			var dist float64
			switch estimator {
			case MSEBased:
				dist = p.CumulativeDistortion * gain * step * step
			case Simplified:
				dist = math.Sqrt(math.Max(p.CumulativeDistortion, 0))
			default:
				dist = p.CumulativeDistortion * gain
			}

			slope := 0.0
			if dRate := p.CumulativeRate - prevRate; dRate > 0 {
				if dDist := dist - prevDist; dDist > 0 {
					slope = dDist / float64(dRate)
				}
			}

			passes[j] = PassPoint{
				CumulativeRate:       p.CumulativeRate,
				CumulativeDistortion: dist,
				Slope:                slope,
			}
			prevRate, prevDist = p.CumulativeRate, dist
		}

		out[i] = Block{ID: b.ID, Passes: passes, SubbandGain: b.SubbandGain, StepSize: b.StepSize}
	}
	return out
}
