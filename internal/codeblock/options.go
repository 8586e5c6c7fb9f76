// Package codeblock wraps internal/bitplane's pass-by-pass coder behind
// the container spec.md §4.4 describes: a CodeBlock value holding the
// coded segment and its pass metadata, plus Encode/Decode/TruncateAt
// operations over it.
package codeblock

import (
	"log/slog"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/bitplane"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

// Options configures one block's coding, independent of its geometry
// (width/height/orientation/bit-depth are supplied alongside the
// coefficients to Encode, and carried inside the resulting CodeBlock for
// Decode).
type Options struct {
	GuardBits         int
	Style             bitplane.BlockStyle
	Termination       mqc.Termination
	CollectDistortion bool

	// Logger receives this package's lifecycle events, passed straight
	// through to the underlying bitplane coder. Nil falls back to
	// slog.Default().
	Logger *slog.Logger
}

func (o Options) toBitplaneOptions(width, height int, orientation ctxmodel.Orientation, bitDepth int) bitplane.Options {
	return bitplane.Options{
		Width:             width,
		Height:            height,
		Orientation:       orientation,
		BitDepth:          bitDepth,
		GuardBits:         o.GuardBits,
		Style:             o.Style,
		Termination:       o.Termination,
		CollectDistortion: o.CollectDistortion,
		Logger:            o.Logger,
	}
}
