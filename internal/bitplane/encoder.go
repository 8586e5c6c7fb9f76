package bitplane

import (
	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

// NumContexts is the size of a code-block's context array: uniform,
// run-length, nine zero-coding, five sign-coding, three magnitude-refinement.
const NumContexts = ctxmodel.NumContexts

// Initial (state, mps) values for the three named contexts that do not
// start at (0,0); transcribed from the standard's context initialization
// table (ISO/IEC 15444-1 Table D.7 lineage).
const (
	initUniform   = 46
	initRunLength = 3
	initZeroStart = 4
)

// Result is everything the code-block container needs from one block's
// encode: the coded bytes (the concatenation of every pass segment), the
// pass descriptors in order, and the zero-bit-plane count signalled
// out-of-band.
type Result struct {
	Data          []byte
	Passes        []PassDescriptor
	ZeroBitPlanes int
}

// Encoder runs the three EBCOT coding passes over one code-block's
// coefficients, bit-plane by bit-plane. Each terminating pass closes its MQ
// segment and appends it to the output; a fresh segment opens for the next
// pass, carrying forward context state unless the block style resets it.
type Encoder struct {
	opts Options
	g    *grid
	mq   *mqc.Encoder
}

// NewEncoder validates geometry/bit-depth and returns a ready encoder.
func NewEncoder(opts Options) (*Encoder, error) {
	if err := ValidateGeometry(opts); err != nil {
		return nil, err
	}
	return &Encoder{opts: opts, g: newGrid(opts.Width, opts.Height)}, nil
}

func freshContexts() *mqc.Encoder {
	mq := mqc.NewEncoder(NumContexts)
	mq.SetContextState(ctxmodel.Uniform, initUniform)
	mq.SetContextState(ctxmodel.RunLength, initRunLength)
	mq.SetContextState(ctxmodel.ZCStart, initZeroStart)
	return mq
}

func carryContexts(from *mqc.Encoder) *mqc.Encoder {
	mq := mqc.NewEncoder(NumContexts)
	for i := 0; i < NumContexts; i++ {
		mq.SetContextState(i, uint8(from.ContextState(i)))
	}
	return mq
}

// Encode runs the pass schedule over coefficients (row-major, length
// width*height) and returns the coded segment, pass descriptors and
// zero-bit-plane count.
func (e *Encoder) Encode(coefficients []int32) (Result, error) {
	if len(coefficients) != e.opts.Width*e.opts.Height {
		return Result{}, coreerr.New(coreerr.InvalidParameter, "coefficient count %d does not match block area %d", len(coefficients), e.opts.Width*e.opts.Height)
	}

	for y := 0; y < e.opts.Height; y++ {
		for x := 0; x < e.opts.Width; x++ {
			e.g.coeff[e.g.index(x, y)] = coefficients[y*e.opts.Width+x]
		}
	}

	effectiveDepth := e.opts.effectiveDepth()
	kmax := e.findMaxBitplane()

	if kmax < 0 {
		return Result{Data: []byte{}, Passes: nil, ZeroBitPlanes: effectiveDepth}, nil
	}

	zeroBitPlanes := effectiveDepth - 1 - kmax
	e.mq = freshContexts()

	var output []byte
	var passes []PassDescriptor
	cumDistortion := 0.0
	schedule := newPassSchedule(kmax)
	termination := e.opts.Termination
	if e.opts.Style&StylePredictableTermination != 0 {
		termination = mqc.TerminationPredictable
	}

	for !schedule.done() {
		if e.opts.cancelled() {
			e.opts.logger().Info("encode cancelled", "width", e.opts.Width, "height", e.opts.Height, "passes_completed", len(passes))
			return Result{}, coreerr.Sentinel(coreerr.Cancelled)
		}

		if schedule.startsBitplane() {
			e.g.clearVisited()
		}

		bp := schedule.bitplane
		raw := schedule.raw(e.opts.Style)

		if raw {
			e.mq.BypassBegin()
		}

		var delta float64
		switch schedule.typ {
		case SigProp:
			delta = e.encodeSigProp(bp, raw)
		case MagRef:
			delta = e.encodeMagRef(bp, raw)
		case Cleanup:
			delta = e.encodeCleanup(bp)
			if e.opts.Style&StyleSegmentationSymbols != 0 {
				e.mq.EncodeSegmentationSymbol(ctxmodel.Uniform)
			}
		}

		if !e.opts.CollectDistortion {
			delta = 0
		}

		terminates := schedule.terminates(e.opts.Style, raw)

		if raw {
			e.mq.BypassFinish(termination != mqc.TerminationDefault)
			output = append(output, e.mq.PendingBytes()...)
		} else if terminates {
			output = append(output, e.mq.Finish(termination)...)
		}

		if terminates {
			if e.opts.Style&StyleResetContexts != 0 {
				e.mq = freshContexts()
			} else {
				e.mq = carryContexts(e.mq)
			}
		}

		cumDistortion += delta
		cumBytes := len(output)
		if !terminates {
			cumBytes += e.mq.NumBytes()
		}
		var slope float64
		if delta > 0 {
			prevBytes := 0
			if len(passes) > 0 {
				prevBytes = passes[len(passes)-1].CumulativeBytes
			}
			if d := cumBytes - prevBytes; d > 0 {
				slope = delta / float64(d)
			}
		}

		passes = append(passes, PassDescriptor{
			Bitplane:        bp,
			Type:            schedule.typ,
			CumulativeBytes: cumBytes,
			Distortion:      cumDistortion,
			Slope:           slope,
		})

		schedule.advance()
	}

	return Result{Data: output, Passes: passes, ZeroBitPlanes: zeroBitPlanes}, nil
}

func (e *Encoder) findMaxBitplane() int {
	var maxAbs int32
	for y := 0; y < e.opts.Height; y++ {
		for x := 0; x < e.opts.Width; x++ {
			v := e.g.coeff[e.g.index(x, y)]
			if v < 0 {
				v = -v
			}
			if v > maxAbs {
				maxAbs = v
			}
		}
	}
	if maxAbs == 0 {
		return -1
	}
	plane := -1
	for maxAbs > 0 {
		maxAbs >>= 1
		plane++
	}
	return plane
}

func (e *Encoder) bitAt(idx, bitplane int) int32 {
	v := e.g.coeff[idx]
	if v < 0 {
		v = -v
	}
	return (v >> uint(bitplane)) & 1
}

func (e *Encoder) encodeBit(bit, ctx int, raw bool) {
	if raw {
		e.mq.BypassEncode(bit)
	} else {
		e.mq.Encode(bit, ctx)
	}
}

// encodeSigProp runs the significance-propagation pass for one bit-plane
// and returns its squared-error distortion contribution.
func (e *Encoder) encodeSigProp(bitplane int, raw bool) float64 {
	w, h := e.opts.Width, e.opts.Height
	distortion := 0.0

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				idx := e.g.index(x, y)
				f := e.g.flags[idx]

				if f&flagSig != 0 {
					continue
				}
				n := effectiveNeighbors(f, e.opts.Style)
				if n&ctxmodel.SigNeighbors == 0 {
					continue
				}

				bit := e.bitAt(idx, bitplane)
				ctx := ctxmodel.ZeroCodingContext(n, e.opts.Orientation)
				e.encodeBit(int(bit), int(ctx), raw)
				e.g.flags[idx] |= flagVisited

				if bit != 0 {
					negative := e.g.coeff[idx] < 0
					signBit := 0
					if negative {
						signBit = 1
					}
					if raw {
						e.encodeBit(signBit, 0, true)
					} else {
						signCtx := ctxmodel.SignCodingContext(n)
						pred := ctxmodel.SignPrediction(n)
						e.mq.Encode(signBit^pred, int(signCtx))
					}

					e.g.setSignificant(x, y, negative)
					distortion += float64(int64(1) << uint(2*bitplane))
				}
			}
		}
	}
	return distortion
}

// encodeMagRef runs the magnitude-refinement pass for one bit-plane.
func (e *Encoder) encodeMagRef(bitplane int, raw bool) float64 {
	w, h := e.opts.Width, e.opts.Height
	distortion := 0.0

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				idx := e.g.index(x, y)
				f := e.g.flags[idx]

				if f&flagSig == 0 || f&flagVisited != 0 {
					continue
				}

				firstRefinement := f&flagRefine == 0
				n := effectiveNeighbors(f, e.opts.Style)
				ctx := ctxmodel.MagnitudeRefinementContext(n, firstRefinement)
				bit := e.bitAt(idx, bitplane)
				e.encodeBit(int(bit), int(ctx), raw)

				e.g.flags[idx] |= flagRefine
				if bit != 0 {
					distortion += float64(int64(1) << uint(2*bitplane))
				}
			}
		}
	}
	return distortion
}

// encodeCleanup runs the cleanup pass for one bit-plane, applying the
// stripe-column run-length predication where it is available. Cleanup is
// never raw-coded: the standard's selective bypass only covers SigProp and
// MagRef.
func (e *Encoder) encodeCleanup(bitplane int) float64 {
	w, h := e.opts.Width, e.opts.Height
	distortion := 0.0

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			if stripe+3 < h && e.cleanupColumnRL(x, stripe, bitplane, &distortion) {
				continue
			}
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				e.encodeCleanupCoefficient(x, y, bitplane, &distortion)
			}
		}
	}
	return distortion
}

// cleanupColumnRL attempts run-length predication on the four coefficients
// of one stripe column. It returns false (doing nothing) when the group
// does not qualify, leaving the caller to fall back to per-coefficient
// coding.
func (e *Encoder) cleanupColumnRL(x, stripe, bitplane int, distortion *float64) bool {
	var group [4]ctxmodel.NeighborFlags
	var visited [4]bool
	firstSig := -1

	for dy := 0; dy < 4; dy++ {
		idx := e.g.index(x, stripe+dy)
		f := e.g.flags[idx]
		visited[dy] = f&flagVisited != 0 || f&flagSig != 0
		group[dy] = effectiveNeighbors(f, e.opts.Style)
		if firstSig == -1 && e.bitAt(idx, bitplane) != 0 {
			firstSig = dy
		}
	}
	if !ctxmodel.CanRunLengthPredicate(group, visited) {
		return false
	}

	if firstSig == -1 {
		e.mq.Encode(0, ctxmodel.RunLength)
		return true
	}
	e.mq.Encode(1, ctxmodel.RunLength)
	e.mq.Encode((firstSig>>1)&1, ctxmodel.Uniform)
	e.mq.Encode(firstSig&1, ctxmodel.Uniform)

	for dy := firstSig; dy < 4; dy++ {
		y := stripe + dy
		idx := e.g.index(x, y)
		if e.g.flags[idx]&(flagVisited|flagSig) != 0 {
			e.g.flags[idx] &^= flagVisited
			continue
		}

		var sig int32
		if dy == firstSig {
			sig = 1
		} else {
			sig = e.bitAt(idx, bitplane)
			n := effectiveNeighbors(e.g.flags[idx], e.opts.Style)
			ctx := ctxmodel.ZeroCodingContext(n, e.opts.Orientation)
			e.mq.Encode(int(sig), int(ctx))
		}

		if sig != 0 {
			e.encodeCleanupSign(x, y, idx, bitplane, distortion)
		}
		e.g.flags[idx] &^= flagVisited
	}
	return true
}

func (e *Encoder) encodeCleanupCoefficient(x, y, bitplane int, distortion *float64) {
	idx := e.g.index(x, y)
	f := e.g.flags[idx]
	if f&(flagVisited|flagSig) != 0 {
		e.g.flags[idx] &^= flagVisited
		return
	}

	sig := e.bitAt(idx, bitplane)
	n := effectiveNeighbors(f, e.opts.Style)
	ctx := ctxmodel.ZeroCodingContext(n, e.opts.Orientation)
	e.mq.Encode(int(sig), int(ctx))

	if sig != 0 {
		e.encodeCleanupSign(x, y, idx, bitplane, distortion)
	}
	e.g.flags[idx] &^= flagVisited
}

func (e *Encoder) encodeCleanupSign(x, y, idx, bitplane int, distortion *float64) {
	n := effectiveNeighbors(e.g.flags[idx], e.opts.Style)
	negative := e.g.coeff[idx] < 0
	signBit := 0
	if negative {
		signBit = 1
	}
	signCtx := ctxmodel.SignCodingContext(n)
	pred := ctxmodel.SignPrediction(n)
	e.mq.Encode(signBit^pred, int(signCtx))

	e.g.setSignificant(x, y, negative)
	*distortion += float64(int64(1) << uint(2*bitplane))
}
