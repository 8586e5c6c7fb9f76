package ratecontrol

import (
	"sort"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
)

// blockHull pairs a block's identity with its convexified hull, so the
// Lagrangian search never has to recompute or re-sort it per iteration.
type blockHull struct {
	id   string
	hull []hullPass
}

// selectionAt returns, for threshold λ, the largest feasible pass whose
// hull slope ≥ λ (included-pass count and its cumulative rate), or zero
// passes if even the first feasible slope is below λ.
func (b blockHull) selectionAt(lambda float64) (passCount int, rate int) {
	for _, hp := range b.hull {
		if hp.slope < lambda {
			break
		}
		passCount = hp.passIndex + 1
		rate = hp.rate
	}
	return passCount, rate
}

// totalRateAt sums selectionAt's rate across every block for threshold λ.
func totalRateAt(hulls []blockHull, lambda float64) int {
	total := 0
	for _, h := range hulls {
		_, rate := h.selectionAt(lambda)
		total += rate
	}
	return total
}

// maxSlope finds the steepest hull slope across every block, the upper
// bound the binary search starts from (λ above this selects nothing).
func maxSlope(hulls []blockHull) float64 {
	max := 0.0
	for _, h := range hulls {
		for _, hp := range h.hull {
			if hp.slope > max {
				max = hp.slope
			}
		}
	}
	return max
}

// lagrangianSearch binary-searches λ so that totalRateAt(λ) is the
// largest value not exceeding budget, within maxIterations. It returns the
// per-block pass selection at the converged λ.
func lagrangianSearch(hulls []blockHull, budget float64, maxIterations int) (map[string]int, error) {
	if maxIterations <= 0 {
		maxIterations = 1
	}

	lo, hi := 0.0, maxSlope(hulls)
	if hi == 0 {
		// No block has any positive-rate pass with positive distortion:
		// everything is free or worthless. Select nothing.
		return map[string]int{}, nil
	}

	if float64(totalRateAt(hulls, 0)) <= budget {
		// Every pass of every block fits; no search needed.
		return selectionMap(hulls, 0), nil
	}

	converged := false
	for i := 0; i < maxIterations; i++ {
		mid := (lo + hi) / 2
		if float64(totalRateAt(hulls, mid)) > budget {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < hi*1e-9+1e-9 {
			converged = true
			break
		}
	}
	if !converged {
		return nil, coreerr.New(coreerr.ConvergenceFailure, "lagrangian search did not bracket budget %.0f within %d iterations", budget, maxIterations)
	}

	return selectionMap(hulls, hi), nil
}

func selectionMap(hulls []blockHull, lambda float64) map[string]int {
	sel := make(map[string]int, len(hulls))
	for _, h := range hulls {
		count, _ := h.selectionAt(lambda)
		sel[h.id] = count
	}
	return sel
}

// hullIndexForCount maps a selected pass count (passIndex+1, in the
// block's original pass-index space, as selectionAt/selectionMap produce
// it) to its position in the compacted hull slice. convexHull drops any
// pass dominated by jumping straight from an earlier hull point to a
// later one, so len(b.hull) is normally smaller than the original pass
// count and the two spaces are not index-aligned — a count only ever
// lands on a hull entry if it came from selectionAt in the first place.
// Returns -1 if count is zero or matches no hull entry.
func (b blockHull) hullIndexForCount(count int) int {
	if count <= 0 {
		return -1
	}
	i := sort.Search(len(b.hull), func(i int) bool { return b.hull[i].passIndex+1 >= count })
	if i < len(b.hull) && b.hull[i].passIndex+1 == count {
		return i
	}
	return -1
}

// strictBudgetBackoff trims one hull step at a time from whichever
// block's currently-selected step has the smallest incremental slope,
// until the total selected rate no longer exceeds budget. Used when
// strict_rate_matching is set and the Lagrangian search's λ granularity
// still leaves the sum over budget. Operates on hull indices internally
// so every lookup stays bounds-safe regardless of how much convexHull
// compacted a block's passes, then translates back to pass counts when
// writing selection.
func strictBudgetBackoff(hulls []blockHull, selection map[string]int, budget int) {
	hullIdx := make(map[string]int, len(hulls))
	for _, h := range hulls {
		hullIdx[h.id] = h.hullIndexForCount(selection[h.id])
	}

	rateOf := func() int {
		total := 0
		for _, h := range hulls {
			if i := hullIdx[h.id]; i >= 0 {
				total += h.hull[i].rate
			}
		}
		return total
	}

	for rateOf() > budget {
		worst := -1
		worstSlope := 0.0
		first := true
		for i, h := range hulls {
			idx := hullIdx[h.id]
			if idx < 0 {
				continue
			}
			s := h.hull[idx].slope
			if first || s < worstSlope {
				worst = i
				worstSlope = s
				first = false
			}
		}
		if worst < 0 {
			return
		}

		id := hulls[worst].id
		idx := hullIdx[id] - 1
		hullIdx[id] = idx
		if idx < 0 {
			selection[id] = 0
		} else {
			selection[id] = hulls[worst].hull[idx].passIndex + 1
		}
	}
}
