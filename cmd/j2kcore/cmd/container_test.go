package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/bitplane"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/codeblock"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
)

func TestContainerRoundTrip(t *testing.T) {
	block := &codeblock.CodeBlock{
		Width: 8, Height: 8, Orientation: ctxmodel.HL, BitDepth: 8, GuardBits: 2,
		Style: bitplane.StyleSegmentationSymbols,
		Data:  []byte{1, 2, 3, 4, 5},
		Passes: []bitplane.PassDescriptor{
			{CumulativeBytes: 2, Distortion: 10.5},
			{CumulativeBytes: 5, Distortion: 3.25},
		},
		ZeroBitPlanes: 3,
	}

	var buf bytes.Buffer
	require.NoError(t, writeContainer(&buf, block))

	got, err := readContainer(&buf)
	require.NoError(t, err)
	require.Equal(t, block.Width, got.Width)
	require.Equal(t, block.Height, got.Height)
	require.Equal(t, block.Orientation, got.Orientation)
	require.Equal(t, block.BitDepth, got.BitDepth)
	require.Equal(t, block.GuardBits, got.GuardBits)
	require.Equal(t, block.Style, got.Style)
	require.Equal(t, block.ZeroBitPlanes, got.ZeroBitPlanes)
	require.Equal(t, block.Data, got.Data)
	require.Len(t, got.Passes, len(block.Passes))
	for i, p := range block.Passes {
		require.Equal(t, p.CumulativeBytes, got.Passes[i].CumulativeBytes)
		require.InDelta(t, p.Distortion, got.Passes[i].Distortion, 1e-12)
	}
}

func TestReadContainerRejectsBadMagic(t *testing.T) {
	_, err := readContainer(bytes.NewReader([]byte("nope")))
	require.Error(t, err)
}

func TestParseOrientationAndTermination(t *testing.T) {
	_, err := parseOrientation("xx")
	require.Error(t, err)
	got, err := parseOrientation("hh")
	require.NoError(t, err)
	require.Equal(t, ctxmodel.HH, got)

	_, err = terminationFromFlagName("bogus")
	require.Error(t, err)
}
