package codeblock

import (
	"testing"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
	"github.com/stretchr/testify/require"
)

func fixtureCoefficients(width, height int) []int32 {
	coeffs := make([]int32, width*height)
	for i := range coeffs {
		coeffs[i] = int32((i*31)%200) - 95
	}
	return coeffs
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	coeffs := fixtureCoefficients(8, 8)
	opts := Options{GuardBits: 2}

	block, err := Encode(coeffs, 8, 8, ctxmodel.LL, 8, opts)
	require.NoError(t, err)
	require.Equal(t, 8+2, block.BitDepth+block.GuardBits)

	got, truncated, err := Decode(block, 8, opts)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, coeffs, got)
}

func TestPassCountAndZeroBitPlaneAccessors(t *testing.T) {
	coeffs := make([]int32, 16)
	coeffs[0] = 1
	block, err := Encode(coeffs, 4, 4, ctxmodel.LL, 8, Options{GuardBits: 2})
	require.NoError(t, err)

	require.Equal(t, 1, block.PassCount())
	require.Equal(t, 8+2-1, block.ZeroBitPlaneCount())
	require.Len(t, block.PerPassSlopes(), block.PassCount())
}

func TestTruncateAtNeverMutatesBlock(t *testing.T) {
	coeffs := fixtureCoefficients(8, 8)
	block, err := Encode(coeffs, 8, 8, ctxmodel.LL, 8, Options{GuardBits: 2})
	require.NoError(t, err)

	originalLen := len(block.Data)
	prefix, err := block.TruncateAt(block.PassCount() / 2)
	require.NoError(t, err)
	require.LessOrEqual(t, len(prefix), originalLen)
	require.Equal(t, originalLen, len(block.Data))

	full, err := block.TruncateAt(block.PassCount())
	require.NoError(t, err)
	require.Equal(t, block.Data, full)

	empty, err := block.TruncateAt(0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTruncateAtRejectsOutOfRangeIndex(t *testing.T) {
	coeffs := fixtureCoefficients(4, 4)
	block, err := Encode(coeffs, 4, 4, ctxmodel.LL, 8, Options{GuardBits: 2})
	require.NoError(t, err)

	_, err = block.TruncateAt(block.PassCount() + 1)
	require.Error(t, err)

	_, err = block.TruncateAt(-1)
	require.Error(t, err)
}
