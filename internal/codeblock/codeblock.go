package codeblock

import (
	"github.com/Raster-Lab/J2KSwift-sub002/internal/bitplane"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
)

// CodeBlock holds one coded code-block: the concatenated pass segments
// and the metadata a packet writer or rate controller needs without
// re-decoding anything (spec.md §4.4/§6).
type CodeBlock struct {
	Width, Height int
	Orientation   ctxmodel.Orientation
	BitDepth      int
	GuardBits     int
	Style         bitplane.BlockStyle

	Data          []byte
	Passes        []bitplane.PassDescriptor
	ZeroBitPlanes int
}

// PassCount is the number of coding passes the block's segment holds.
func (cb *CodeBlock) PassCount() int { return len(cb.Passes) }

// ZeroBitPlaneCount is the count of all-zero most-significant bit-planes
// that were never coded, signalled out-of-band.
func (cb *CodeBlock) ZeroBitPlaneCount() int { return cb.ZeroBitPlanes }

// PerPassSlopes returns each pass's rate-distortion slope in pass order,
// the figure the PCRD-opt rate controller convexifies over.
func (cb *CodeBlock) PerPassSlopes() []float64 {
	slopes := make([]float64, len(cb.Passes))
	for i, p := range cb.Passes {
		slopes[i] = p.Slope
	}
	return slopes
}

// Encode runs the bit-plane coder over coefficients and packages the
// result as a CodeBlock (spec.md §4.4, "encode").
func Encode(coefficients []int32, width, height int, orientation ctxmodel.Orientation, bitDepth int, opts Options) (*CodeBlock, error) {
	bpOpts := opts.toBitplaneOptions(width, height, orientation, bitDepth)
	enc, err := bitplane.NewEncoder(bpOpts)
	if err != nil {
		return nil, err
	}
	result, err := enc.Encode(coefficients)
	if err != nil {
		return nil, err
	}
	return &CodeBlock{
		Width:         width,
		Height:        height,
		Orientation:   orientation,
		BitDepth:      bitDepth,
		GuardBits:     opts.GuardBits,
		Style:         opts.Style,
		Data:          result.Data,
		Passes:        result.Passes,
		ZeroBitPlanes: result.ZeroBitPlanes,
	}, nil
}

// Decode reconstructs a block's coefficients from its coded segment
// (spec.md §4.4, "decode"). The returned bool reports whether the
// reconstruction is a best-effort result over truncated input.
func Decode(cb *CodeBlock, bitDepth int, opts Options) ([]int32, bool, error) {
	bpOpts := opts.toBitplaneOptions(cb.Width, cb.Height, cb.Orientation, bitDepth)
	dec, err := bitplane.NewDecoder(bpOpts)
	if err != nil {
		return nil, false, err
	}

	passBytes := make([]int, len(cb.Passes))
	for i, p := range cb.Passes {
		passBytes[i] = p.CumulativeBytes
	}
	return dec.Decode(cb.Data, passBytes, len(cb.Passes), cb.ZeroBitPlanes)
}

// TruncateAt returns the prefix of the coded segment corresponding to the
// first passIndex passes. It never mutates the block (spec.md §4.4,
// "truncate_at").
func (cb *CodeBlock) TruncateAt(passIndex int) ([]byte, error) {
	if passIndex < 0 || passIndex > len(cb.Passes) {
		return nil, coreerr.New(coreerr.InvalidParameter, "pass index %d out of range [0,%d]", passIndex, len(cb.Passes))
	}
	if passIndex == 0 {
		return []byte{}, nil
	}

	n := cb.Passes[passIndex-1].CumulativeBytes
	if n > len(cb.Data) {
		n = len(cb.Data)
	}
	out := make([]byte, n)
	copy(out, cb.Data[:n])
	return out, nil
}
