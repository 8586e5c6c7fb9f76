package bitplane

import (
	"testing"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/coreerr"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/mqc"
)

func baseOptions(style BlockStyle) Options {
	return Options{
		Width:       8,
		Height:      8,
		Orientation: ctxmodel.LL,
		BitDepth:    8,
		GuardBits:   2,
		Style:       style,
		Termination: mqc.TerminationDefault,
	}
}

func passBytesOf(passes []PassDescriptor) []int {
	out := make([]int, len(passes))
	for i, p := range passes {
		out[i] = p.CumulativeBytes
	}
	return out
}

func roundTrip(t *testing.T, opts Options, coeffs []int32) []int32 {
	t.Helper()

	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	result, err := enc.Encode(coeffs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(opts)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	got, truncated, err := dec.Decode(result.Data, passBytesOf(result.Passes), len(result.Passes), result.ZeroBitPlanes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if truncated {
		t.Fatal("decode reported truncated on a complete segment")
	}
	return got
}

func assertEqual(t *testing.T, got, want []int32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("coefficient %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAllZeroBlockProducesNoPasses(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)

	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	result, err := enc.Encode(coeffs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(result.Passes) != 0 {
		t.Fatalf("expected 0 passes for an all-zero block, got %d", len(result.Passes))
	}
	if want := opts.BitDepth + opts.GuardBits; result.ZeroBitPlanes != want {
		t.Fatalf("zero_bit_planes = %d, want %d", result.ZeroBitPlanes, want)
	}
	if len(result.Data) != 0 {
		t.Fatalf("expected no coded bytes for an all-zero block, got %d", len(result.Data))
	}

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestSingleCoefficientRoundTrip(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[3*opts.Width+5] = 41

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestMixedSignCoefficientsRoundTrip(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[0] = 5
	coeffs[opts.Width*opts.Height-1] = -12
	coeffs[opts.Width+2] = -200
	coeffs[5*opts.Width+5] = 255

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestDenseBlockRoundTrip(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	for i := range coeffs {
		v := int32((i*37)%251) - 125
		coeffs[i] = v
	}

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestPassCountMatchesFormula(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[0] = 200 // kmax = 7 at bit depth 8

	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	result, err := enc.Encode(coeffs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	kmax := opts.effectiveDepth() - 1 - result.ZeroBitPlanes
	want := 3*(kmax+1) - 2
	if len(result.Passes) != want {
		t.Fatalf("pass_count = %d, want %d (kmax=%d)", len(result.Passes), want, kmax)
	}
	if result.Passes[0].Type != Cleanup {
		t.Fatalf("first pass must be Cleanup, got %s", result.Passes[0].Type)
	}
}

func TestSelectiveBypassRoundTrip(t *testing.T) {
	opts := baseOptions(StyleSelectiveBypass)
	coeffs := make([]int32, opts.Width*opts.Height)
	for i := range coeffs {
		v := int32((i*53)%200) - 90
		coeffs[i] = v
	}

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestSegmentationSymbolsRoundTrip(t *testing.T) {
	opts := baseOptions(StyleSegmentationSymbols)
	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[10] = 37
	coeffs[20] = -64

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestResetContextsAndTerminatePerPassRoundTrip(t *testing.T) {
	opts := baseOptions(StyleResetContexts | StyleTerminatePerPass)
	coeffs := make([]int32, opts.Width*opts.Height)
	for i := range coeffs {
		v := int32((i*19)%180) - 80
		coeffs[i] = v
	}

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestFullStyleCombinationRoundTrip(t *testing.T) {
	opts := baseOptions(StyleSelectiveBypass | StyleResetContexts | StyleTerminatePerPass | StyleSegmentationSymbols)
	opts.Termination = mqc.TerminationPredictable
	coeffs := make([]int32, opts.Width*opts.Height)
	for i := range coeffs {
		v := int32((i*29)%210) - 100
		coeffs[i] = v
	}

	got := roundTrip(t, opts, coeffs)
	assertEqual(t, got, coeffs)
}

func TestValidateGeometryRejectsNonPowerOfTwoDimensions(t *testing.T) {
	opts := baseOptions(0)
	opts.Width = 6
	if _, err := NewEncoder(opts); !isKind(err, coreerr.InvalidBlockGeometry) {
		t.Fatalf("expected InvalidBlockGeometry, got %v", err)
	}
}

func TestValidateGeometryRejectsOversizedArea(t *testing.T) {
	opts := baseOptions(0)
	opts.Width, opts.Height = 1024, 1024
	if _, err := NewEncoder(opts); !isKind(err, coreerr.InvalidBlockGeometry) {
		t.Fatalf("expected InvalidBlockGeometry, got %v", err)
	}
}

func TestValidateGeometryRejectsBadBitDepth(t *testing.T) {
	opts := baseOptions(0)
	opts.BitDepth = 0
	if _, err := NewEncoder(opts); !isKind(err, coreerr.InvalidBitDepth) {
		t.Fatalf("expected InvalidBitDepth, got %v", err)
	}

	opts.BitDepth = 39
	if _, err := NewEncoder(opts); !isKind(err, coreerr.InvalidBitDepth) {
		t.Fatalf("expected InvalidBitDepth, got %v", err)
	}
}

func TestValidateGeometryRejectsBadGuardBits(t *testing.T) {
	opts := baseOptions(0)
	opts.GuardBits = 16
	if _, err := NewEncoder(opts); !isKind(err, coreerr.InvalidParameter) {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestDecodeRejectsMismatchedPassByteCount(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[0] = 50

	enc, _ := NewEncoder(opts)
	result, err := enc.Encode(coeffs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, _ := NewDecoder(opts)
	_, _, err = dec.Decode(result.Data, passBytesOf(result.Passes)[:len(result.Passes)-1], len(result.Passes), result.ZeroBitPlanes)
	if !isKind(err, coreerr.InvalidParameter) {
		t.Fatalf("expected InvalidParameter, got %v", err)
	}
}

func TestDecodeFlagsTruncatedInput(t *testing.T) {
	opts := baseOptions(0)
	coeffs := make([]int32, opts.Width*opts.Height)
	for i := range coeffs {
		v := int32((i*41)%150) - 70
		coeffs[i] = v
	}

	enc, _ := NewEncoder(opts)
	result, err := enc.Encode(coeffs)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	truncatedData := result.Data[:len(result.Data)/2]
	dec, _ := NewDecoder(opts)
	_, truncated, err := dec.Decode(truncatedData, passBytesOf(result.Passes), len(result.Passes), result.ZeroBitPlanes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !truncated {
		t.Fatal("expected decoder to report truncated input")
	}
}

func TestCancellationBeforeFirstPassReturnsNoOutput(t *testing.T) {
	opts := baseOptions(0)
	cancel := make(chan struct{})
	close(cancel)
	opts.Cancel = cancel

	coeffs := make([]int32, opts.Width*opts.Height)
	coeffs[0] = 77

	enc, err := NewEncoder(opts)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	result, err := enc.Encode(coeffs)
	if !isKind(err, coreerr.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if len(result.Data) != 0 || len(result.Passes) != 0 {
		t.Fatalf("expected no output on cancellation, got %d bytes / %d passes", len(result.Data), len(result.Passes))
	}
}

func isKind(err error, kind coreerr.Kind) bool {
	ce, ok := err.(*coreerr.Error)
	return ok && ce.Kind == kind
}
