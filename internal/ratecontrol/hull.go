package ratecontrol

// hullPass is one feasible pass on a block's upper rate-distortion hull:
// its index into the block's original Passes slice, and the hull slope
// (recomputed from the hull segment, not the raw per-pass slope) that the
// Lagrangian search compares against λ.
type hullPass struct {
	passIndex int
	rate      int
	distortion float64
	slope     float64
}

// convexHull computes the upper convex hull of a block's (rate,
// distortion) pass points, anchored at the implicit (0,0) origin (zero
// bytes, zero distortion recovered). A pass survives onto the hull only if
// including it is never dominated by jumping directly from an earlier
// hull pass to a later one — spec.md invariant 7, "per-block slopes are
// non-increasing across feasible passes".
func convexHull(passes []PassPoint) []hullPass {
	if len(passes) == 0 {
		return nil
	}

	type point struct {
		rate int
		dist float64
	}
	pts := make([]point, 0, len(passes)+1)
	pts = append(pts, point{0, 0})
	for _, p := range passes {
		pts = append(pts, point{p.CumulativeRate, p.CumulativeDistortion})
	}

	slope := func(a, b point) float64 {
		dr := b.rate - a.rate
		if dr <= 0 {
			return 0
		}
		return (b.dist - a.dist) / float64(dr)
	}

	// stack holds indices into pts; index 0 is the origin and never
	// corresponds to a real pass.
	stack := []int{0}
	for i := 1; i < len(pts); i++ {
		for len(stack) >= 2 {
			a, b := pts[stack[len(stack)-2]], pts[stack[len(stack)-1]]
			if slope(b, pts[i]) >= slope(a, b) {
				stack = stack[:len(stack)-1]
				continue
			}
			break
		}
		stack = append(stack, i)
	}

	hull := make([]hullPass, 0, len(stack)-1)
	for k := 1; k < len(stack); k++ {
		prev := pts[stack[k-1]]
		cur := pts[stack[k]]
		hull = append(hull, hullPass{
			passIndex:  stack[k] - 1,
			rate:       cur.rate,
			distortion: cur.dist,
			slope:      slope(prev, cur),
		})
	}
	return hull
}
