package bitplane

import (
	"log/slog"
	"math/bits"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

// PassType names the three coding passes a bit-plane cycles through. The
// pass scheduler below is a small state machine over this enum rather than
// a set of boolean "is this the first pass" flags.
type PassType int

const (
	SigProp PassType = iota
	MagRef
	Cleanup
)

func (p PassType) String() string {
	switch p {
	case SigProp:
		return "SigProp"
	case MagRef:
		return "MagRef"
	case Cleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// PassDescriptor is the per-pass record a code-block keeps for rate
// control: how many bytes the segment holds through this pass, how much
// squared-error distortion it has resolved so far, and the marginal
// distortion/rate slope the rate controller convexifies over.
type PassDescriptor struct {
	Bitplane        int
	Type            PassType
	CumulativeBytes int
	Distortion      float64
	Slope           float64
}

// BlockStyle is the code-block style bit-field from SPEC_FULL §4.4 / the
// standard's Table A.18.
type BlockStyle uint8

const (
	StyleSelectiveBypass BlockStyle = 1 << iota
	StyleResetContexts
	StyleTerminatePerPass
	StyleVerticallyCausal
	StylePredictableTermination
	StyleSegmentationSymbols
)

// Options carries everything the encoder/decoder need beyond the raw
// coefficient plane.
type Options struct {
	Width, Height int
	Orientation   ctxmodel.Orientation
	BitDepth      int
	GuardBits     int
	Style         BlockStyle
	Termination   mqc.Termination

	// CollectDistortion enables the per-pass squared-error bookkeeping
	// in PassDescriptor.Distortion/Slope. Disabling it leaves both at
	// zero for every pass, for callers that only want the coded bytes
	// (e.g. a lossless pipeline with no rate control downstream).
	CollectDistortion bool

	// Cancel, when non-nil, is polled between passes (spec's
	// block-granularity cooperative cancellation). A closed channel
	// before any pass completes discards all output and returns
	// coreerr.Cancelled.
	Cancel <-chan struct{}

	// Logger receives pass-lifecycle events (cancellation, truncated
	// decode). Nil falls back to slog.Default(); this package never
	// calls slog.SetDefault itself.
	Logger *slog.Logger
}

func (o Options) cancelled() bool {
	if o.Cancel == nil {
		return false
	}
	select {
	case <-o.Cancel:
		return true
	default:
		return false
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) effectiveDepth() int { return o.BitDepth + o.GuardBits }

// ValidateGeometry enforces the block-size and bit-depth domains from
// SPEC_FULL §4.3/§6/§7: each dimension a power of two in [4,1024], area
// at most 4096, bit-depth in (0,38], guard bits in [0,15].
func ValidateGeometry(o Options) error {
	w, h := o.Width, o.Height
	if w < 4 || w > 1024 || h < 4 || h > 1024 || !isPowerOfTwo(w) || !isPowerOfTwo(h) {
		return coreerr.New(coreerr.InvalidBlockGeometry, "block dimensions %dx%d must each be a power of two in [4,1024]", w, h)
	}
	if w*h > 4096 {
		return coreerr.New(coreerr.InvalidBlockGeometry, "block area %d exceeds 4096", w*h)
	}
	if o.BitDepth <= 0 || o.BitDepth > 38 {
		return coreerr.New(coreerr.InvalidBitDepth, "bit depth %d must be in (0,38]", o.BitDepth)
	}
	if o.GuardBits < 0 || o.GuardBits > 15 {
		return coreerr.New(coreerr.InvalidParameter, "guard bits %d must be in [0,15]", o.GuardBits)
	}
	return nil
}

func isPowerOfTwo(n int) bool { return n > 0 && bits.OnesCount(uint(n)) == 1 }

// passSchedule advances the SigProp→MagRef→Cleanup cycle, skipping the
// first two passes of the top bit-plane per the standard. It is also the
// single source of truth for which passes raw-code and which terminate, so
// the encoder and a decoder replaying the same (kmax, style) never disagree
// about segment boundaries.
type passSchedule struct {
	kmax     int
	bitplane int
	typ      PassType
	first    bool
}

func newPassSchedule(kmax int) *passSchedule {
	return &passSchedule{kmax: kmax, bitplane: kmax, typ: Cleanup, first: true}
}

func (s *passSchedule) done() bool { return s.bitplane < 0 }

// startsBitplane reports whether the pass about to run is the first pass
// touching a new bit-plane (so VISIT flags must be cleared beforehand).
func (s *passSchedule) startsBitplane() bool {
	return s.typ == SigProp || (s.typ == Cleanup && s.first)
}

// raw reports whether this pass uses the selective arithmetic bypass
// (context-free raw bits) rather than MQ coding. Only SigProp/MagRef
// passes below the switch point (kmax-3) are eligible; Cleanup never is.
func (s *passSchedule) raw(style BlockStyle) bool {
	return s.typ != Cleanup && style&StyleSelectiveBypass != 0 && s.bitplane < s.kmax-3
}

// terminates reports whether this pass closes its MQ/bypass segment:
// Cleanup always does, as does any pass under terminate_per_pass, as does
// any raw pass (the bypass region forces per-pass termination so normal
// MQ coding can resume cleanly afterward).
func (s *passSchedule) terminates(style BlockStyle, raw bool) bool {
	return s.typ == Cleanup || style&StyleTerminatePerPass != 0 || raw
}

// passPlan is one entry of a dry-run replay of the pass schedule: enough to
// know a pass's bit-plane, type, and segment-boundary behaviour without
// touching any coefficient or coded-byte data.
type passPlan struct {
	Bitplane       int
	Type           PassType
	Raw            bool
	Terminates     bool
	StartsBitplane bool
}

// buildPassPlan replays the schedule for kmax/style up to numPasses entries.
// The encoder and decoder both derive their segment boundaries from this
// same replay, so they can never disagree about where one MQ/bypass
// segment ends and the next begins.
func buildPassPlan(kmax int, style BlockStyle, numPasses int) []passPlan {
	plan := make([]passPlan, 0, numPasses)
	schedule := newPassSchedule(kmax)
	for !schedule.done() && len(plan) < numPasses {
		raw := schedule.raw(style)
		plan = append(plan, passPlan{
			Bitplane:       schedule.bitplane,
			Type:           schedule.typ,
			Raw:            raw,
			Terminates:     schedule.terminates(style, raw),
			StartsBitplane: schedule.startsBitplane(),
		})
		schedule.advance()
	}
	return plan
}

func (s *passSchedule) advance() {
	if s.typ == Cleanup {
		s.typ = SigProp
		s.bitplane--
		s.first = false
	} else {
		s.typ++
	}
}
