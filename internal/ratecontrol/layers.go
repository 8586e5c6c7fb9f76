package ratecontrol

import (
	"log/slog"
	"math"
	"sort"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
)

// Mode selects how AllocateLayers derives its target byte budget.
type Mode int

const (
	// Lossless includes every pass of every block in a single layer.
	Lossless Mode = iota
	// TargetBitrate derives the budget from a bits-per-pixel figure.
	TargetBitrate
	// ConstantQuality derives the budget from a [0,1] quality figure via
	// a monotone quality-to-bitrate curve.
	ConstantQuality
)

func (m Mode) String() string {
	switch m {
	case Lossless:
		return "lossless"
	case TargetBitrate:
		return "target_bitrate"
	case ConstantQuality:
		return "constant_quality"
	default:
		return "unknown"
	}
}

// Configuration is the rate controller's input configuration (spec.md §6,
// "RateControlConfiguration").
type Configuration struct {
	Mode                 Mode
	LayerCount           int
	DistortionEstimation DistortionEstimator
	StrictRateMatching   bool

	// TargetBPP is the bits-per-pixel budget for Mode == TargetBitrate.
	TargetBPP float64
	// Quality is the [0,1] figure for Mode == ConstantQuality.
	Quality float64

	// MaxLagrangeIterations bounds the binary search invoked per layer;
	// zero selects a sane default.
	MaxLagrangeIterations int

	// Logger receives allocation-lifecycle events (convergence failure,
	// strict-budget back-off). Nil falls back to slog.Default().
	Logger *slog.Logger
}

func (c Configuration) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Validate enforces the domains Configuration accepts (spec.md §7).
func (c Configuration) Validate() error {
	if c.LayerCount <= 0 {
		return coreerr.New(coreerr.InvalidParameter, "layer count %d must be positive", c.LayerCount)
	}
	if c.Mode == TargetBitrate && c.TargetBPP <= 0 {
		return coreerr.New(coreerr.InvalidParameter, "target bitrate %.4f bpp must be positive", c.TargetBPP)
	}
	if c.Mode == ConstantQuality && (c.Quality < 0 || c.Quality > 1) {
		return coreerr.New(coreerr.InvalidParameter, "quality %.4f must be in [0,1]", c.Quality)
	}
	return nil
}

func (c Configuration) maxIterations() int {
	if c.MaxLagrangeIterations > 0 {
		return c.MaxLagrangeIterations
	}
	return 64
}

// Layer is one quality layer's output: its target rate (absent for
// lossless) and, per block ID, how many passes it contributes.
type Layer struct {
	Index         int
	TargetRate    *float64
	Contributions map[string]int
}

// AllocateLayers runs PCRD-opt over blocks: convexify each block's
// rate-distortion points, derive a target byte budget from config, then
// binary-search a Lagrangian threshold per layer (an increasing sequence
// of target rates for multi-layer output), producing one Layer per
// configured layer with per-block included-pass counts (spec.md §4.5).
func AllocateLayers(blocks []Block, totalPixels int, config Configuration) ([]Layer, error) {
	if len(blocks) == 0 {
		return nil, coreerr.New(coreerr.EmptyInput, "code-block list is empty")
	}
	if totalPixels <= 0 {
		return nil, coreerr.New(coreerr.InvalidPixelCount, "total pixel count %d must be positive", totalPixels)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	estimated := applyEstimator(blocks, config.DistortionEstimation)
	hulls := make([]blockHull, len(estimated))
	for i, b := range estimated {
		hulls[i] = blockHull{id: b.ID, hull: convexHull(b.Passes)}
	}

	if config.Mode == Lossless {
		return losslessLayers(estimated), nil
	}

	budget := targetBudget(config, totalPixels, estimated)
	targets := layerTargets(budget, config.LayerCount)

	layers := make([]Layer, config.LayerCount)
	previous := make(map[string]int, len(hulls))
	for _, h := range hulls {
		previous[h.id] = 0
	}

	for l, target := range targets {
		selection, err := lagrangianSearch(hulls, target, config.maxIterations())
		if err != nil {
			config.logger().Warn("lagrangian search failed to converge", "layer", l, "target_rate", target, "max_iterations", config.maxIterations())
			return nil, err
		}

		if config.StrictRateMatching {
			strictBudgetBackoff(hulls, selection, int(math.Round(target)))
			config.logger().Debug("strict budget back-off applied", "layer", l, "target_rate", target)
		}

		// Monotonicity: a later layer never selects fewer passes than an
		// earlier one for the same block (invariant 6).
		contributions := make(map[string]int, len(hulls))
		for _, h := range hulls {
			count := selection[h.id]
			if count < previous[h.id] {
				count = previous[h.id]
			}
			contributions[h.id] = count - previous[h.id]
			previous[h.id] = count
		}

		tr := target
		layers[l] = Layer{Index: l, TargetRate: &tr, Contributions: contributions}
	}
	return layers, nil
}

func losslessLayers(blocks []Block) []Layer {
	contributions := make(map[string]int, len(blocks))
	for _, b := range blocks {
		contributions[b.ID] = len(b.Passes)
	}
	return []Layer{{Index: 0, Contributions: contributions}}
}

// targetBudget derives the final layer's total byte budget from config's
// mode, clamped to the sum of every block's full rate (a lossless ceiling
// a target/quality budget can never need to exceed).
func targetBudget(config Configuration, totalPixels int, blocks []Block) float64 {
	fullRate := 0.0
	for _, b := range blocks {
		if n := len(b.Passes); n > 0 {
			fullRate += float64(b.Passes[n-1].CumulativeRate)
		}
	}

	var budget float64
	switch config.Mode {
	case TargetBitrate:
		budget = config.TargetBPP * float64(totalPixels) / 8
	case ConstantQuality:
		// Quality-to-bitrate curve: quality^2 scales the full achievable
		// rate, a monotone mapping from q=0 (empty) to q=1 (lossless)
		// that favours steep early gains (matching typical
		// rate-distortion curve shape) without needing the quantizer
		// this core doesn't own.
		budget = config.Quality * config.Quality * fullRate
	default:
		budget = fullRate
	}

	if budget > fullRate {
		budget = fullRate
	}
	return budget
}

// layerTargets builds the increasing target-rate sequence R_1 < ... < R_L
// spec.md's layer-formation step requires, weighted toward the final
// budget with an exponent like the teacher's progressive allocation so
// earlier layers capture a meaningfully smaller fraction of the budget.
func layerTargets(budget float64, layerCount int) []float64 {
	targets := make([]float64, layerCount)
	for l := 0; l < layerCount; l++ {
		if l == layerCount-1 {
			targets[l] = budget
			continue
		}
		frac := math.Pow(float64(l+1)/float64(layerCount), 1.3)
		targets[l] = budget * frac
	}
	sort.Float64s(targets)
	return targets
}
