package bitplane

import (
	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

// Decoder mirrors Encoder pass-for-pass: given the same (zero_bit_planes,
// pass_count, style) metadata the encoder reported, it replays the
// identical pass schedule and therefore agrees with the encoder on segment
// boundaries without needing any length prefixes inside the byte stream
// itself.
type Decoder struct {
	opts Options
	g    *grid
	mq   *mqc.Decoder
}

// NewDecoder validates geometry/bit-depth and returns a ready decoder.
func NewDecoder(opts Options) (*Decoder, error) {
	if err := ValidateGeometry(opts); err != nil {
		return nil, err
	}
	return &Decoder{opts: opts, g: newGrid(opts.Width, opts.Height)}, nil
}

func freshDecodeContexts(data []byte) *mqc.Decoder {
	mq := mqc.NewDecoder(data, NumContexts)
	mq.SetContextState(ctxmodel.Uniform, initUniform)
	mq.SetContextState(ctxmodel.RunLength, initRunLength)
	mq.SetContextState(ctxmodel.ZCStart, initZeroStart)
	return mq
}

func carryDecodeContexts(data []byte, from *mqc.Decoder) *mqc.Decoder {
	mq := mqc.NewDecoder(data, NumContexts)
	for i := 0; i < NumContexts; i++ {
		mq.SetContextState(i, uint8(from.ContextState(i)))
	}
	return mq
}

// Decode reconstructs a code-block's coefficients.
//
// data is the concatenation of every terminated pass segment, exactly as
// produced by Encoder.Encode. passBytes holds, for every pass in order,
// the cumulative byte count Encoder reported in PassDescriptor —
// equivalently, the per_pass_bytes metadata the code-block container
// carries alongside the segment. Only the entries at terminating passes
// are load-bearing: they mark where one MQ segment ends and the next
// begins; Decode derives those boundaries by replaying the same pass
// schedule the encoder used, so it reads exactly those entries.
func (d *Decoder) Decode(data []byte, passBytes []int, numPasses, zeroBitPlanes int) ([]int32, bool, error) {
	if numPasses == 0 {
		return make([]int32, d.opts.Width*d.opts.Height), false, nil
	}
	if len(passBytes) != numPasses {
		return nil, false, coreerr.New(coreerr.InvalidParameter, "passBytes has %d entries, want %d", len(passBytes), numPasses)
	}

	effectiveDepth := d.opts.effectiveDepth()
	kmax := effectiveDepth - 1 - zeroBitPlanes
	if kmax < 0 || kmax >= effectiveDepth {
		return nil, false, coreerr.New(coreerr.MalformedBitstream, "zero_bit_planes %d inconsistent with effective depth %d", zeroBitPlanes, effectiveDepth)
	}

	plan := buildPassPlan(kmax, d.opts.Style, numPasses)
	if len(plan) != numPasses {
		return nil, false, coreerr.New(coreerr.MalformedBitstream, "pass_count %d inconsistent with zero_bit_planes %d", numPasses, zeroBitPlanes)
	}

	segStart := make([]int, numPasses)
	segEnd := make([]int, numPasses)
	prevTermBytes := 0
	for i := range plan {
		segStart[i] = prevTermBytes
		if plan[i].Terminates {
			prevTermBytes = passBytes[i]
		}
	}
	nextTerm := len(data)
	for i := numPasses - 1; i >= 0; i-- {
		if plan[i].Terminates {
			nextTerm = passBytes[i]
		}
		segEnd[i] = nextTerm
	}

	truncated := false
	for i, p := range plan {
		if d.opts.cancelled() {
			d.opts.logger().Info("decode cancelled", "width", d.opts.Width, "height", d.opts.Height, "pass_index", i)
			return nil, false, coreerr.Sentinel(coreerr.Cancelled)
		}

		if p.StartsBitplane {
			d.g.clearVisited()
		}

		if i == 0 || plan[i-1].Terminates {
			end := segEnd[i]
			if end > len(data) {
				end = len(data)
				truncated = true
				d.opts.logger().Warn("decode ran past the end of the supplied data", "pass_index", i, "available_bytes", len(data))
			}
			start := segStart[i]
			if start > end {
				start = end
			}
			segment := data[start:end]
			if d.mq == nil {
				d.mq = freshDecodeContexts(segment)
			} else if d.opts.Style&StyleResetContexts != 0 {
				d.mq = freshDecodeContexts(segment)
			} else {
				d.mq = carryDecodeContexts(segment, d.mq)
			}
			if p.Raw {
				d.mq.BypassBegin()
			}
		}

		switch p.Type {
		case SigProp:
			d.decodeSigProp(p.Bitplane, p.Raw)
		case MagRef:
			d.decodeMagRef(p.Bitplane, p.Raw)
		case Cleanup:
			d.decodeCleanup(p.Bitplane)
			if d.opts.Style&StyleSegmentationSymbols != 0 {
				if !d.mq.DecodeSegmentationSymbol(ctxmodel.Uniform) && !d.mq.Truncated() {
					return nil, false, coreerr.New(coreerr.MalformedBitstream, "segmentation symbol mismatch at pass %d", i)
				}
			}
		}

		if d.mq.Truncated() {
			truncated = true
		}
	}

	return d.g.extract(d.opts.Width, d.opts.Height), truncated, nil
}

func (d *Decoder) decodeBit(ctx int, raw bool) int {
	if raw {
		return d.mq.BypassDecode()
	}
	return d.mq.Decode(ctx)
}

// decodeSigProp mirrors Encoder.encodeSigProp.
func (d *Decoder) decodeSigProp(bitplane int, raw bool) {
	w, h := d.opts.Width, d.opts.Height

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				idx := d.g.index(x, y)
				f := d.g.flags[idx]

				if f&flagSig != 0 {
					continue
				}
				n := effectiveNeighbors(f, d.opts.Style)
				if n&ctxmodel.SigNeighbors == 0 {
					continue
				}

				ctx := ctxmodel.ZeroCodingContext(n, d.opts.Orientation)
				bit := d.decodeBit(int(ctx), raw)
				d.g.flags[idx] |= flagVisited

				if bit != 0 {
					var sign int
					if raw {
						sign = d.decodeBit(0, true)
					} else {
						signCtx := ctxmodel.SignCodingContext(n)
						pred := ctxmodel.SignPrediction(n)
						sign = d.mq.Decode(int(signCtx)) ^ pred
					}
					negative := sign != 0
					d.g.setCoefficient(x, y, bitplane, negative)
				}
			}
		}
	}
}

// decodeMagRef mirrors Encoder.encodeMagRef.
func (d *Decoder) decodeMagRef(bitplane int, raw bool) {
	w, h := d.opts.Width, d.opts.Height

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				idx := d.g.index(x, y)
				f := d.g.flags[idx]

				if f&flagSig == 0 || f&flagVisited != 0 {
					continue
				}

				firstRefinement := f&flagRefine == 0
				n := effectiveNeighbors(f, d.opts.Style)
				ctx := ctxmodel.MagnitudeRefinementContext(n, firstRefinement)
				bit := d.decodeBit(int(ctx), raw)

				d.g.flags[idx] |= flagRefine
				if bit != 0 {
					d.g.addRefinementBit(idx, bitplane)
				}
			}
		}
	}
}

// decodeCleanup mirrors Encoder.encodeCleanup.
func (d *Decoder) decodeCleanup(bitplane int) {
	w, h := d.opts.Width, d.opts.Height

	for stripe := 0; stripe < h; stripe += 4 {
		for x := 0; x < w; x++ {
			if stripe+3 < h && d.decodeCleanupColumnRL(x, stripe, bitplane) {
				continue
			}
			for dy := 0; dy < 4 && stripe+dy < h; dy++ {
				y := stripe + dy
				d.decodeCleanupCoefficient(x, y, bitplane)
			}
		}
	}
}

func (d *Decoder) decodeCleanupColumnRL(x, stripe, bitplane int) bool {
	var group [4]ctxmodel.NeighborFlags
	var visited [4]bool

	for dy := 0; dy < 4; dy++ {
		idx := d.g.index(x, stripe+dy)
		f := d.g.flags[idx]
		visited[dy] = f&flagVisited != 0 || f&flagSig != 0
		group[dy] = effectiveNeighbors(f, d.opts.Style)
	}
	if !ctxmodel.CanRunLengthPredicate(group, visited) {
		return false
	}

	if d.mq.Decode(ctxmodel.RunLength) == 0 {
		return true
	}

	runlen := d.mq.Decode(ctxmodel.Uniform)<<1 | d.mq.Decode(ctxmodel.Uniform)

	partial := true
	for dy := runlen; dy < 4; dy++ {
		y := stripe + dy
		idx := d.g.index(x, y)
		if d.g.flags[idx]&(flagVisited|flagSig) != 0 {
			d.g.flags[idx] &^= flagVisited
			continue
		}

		var sig int
		if partial {
			sig = 1
			partial = false
		} else {
			n := effectiveNeighbors(d.g.flags[idx], d.opts.Style)
			ctx := ctxmodel.ZeroCodingContext(n, d.opts.Orientation)
			sig = d.mq.Decode(int(ctx))
		}

		if sig != 0 {
			d.decodeCleanupSign(x, y, idx, bitplane)
		}
		d.g.flags[idx] &^= flagVisited
	}
	return true
}

func (d *Decoder) decodeCleanupCoefficient(x, y, bitplane int) {
	idx := d.g.index(x, y)
	f := d.g.flags[idx]
	if f&(flagVisited|flagSig) != 0 {
		d.g.flags[idx] &^= flagVisited
		return
	}

	n := effectiveNeighbors(f, d.opts.Style)
	ctx := ctxmodel.ZeroCodingContext(n, d.opts.Orientation)
	sig := d.mq.Decode(int(ctx))

	if sig != 0 {
		d.decodeCleanupSign(x, y, idx, bitplane)
	}
	d.g.flags[idx] &^= flagVisited
}

func (d *Decoder) decodeCleanupSign(x, y, idx, bitplane int) {
	n := effectiveNeighbors(d.g.flags[idx], d.opts.Style)
	signCtx := ctxmodel.SignCodingContext(n)
	pred := ctxmodel.SignPrediction(n)
	sign := d.mq.Decode(int(signCtx)) ^ pred
	d.g.setCoefficient(x, y, bitplane, sign != 0)
}
