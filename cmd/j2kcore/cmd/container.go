package cmd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Raster-Lab/J2KSwift-sub002/internal/bitplane"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/codeblock"
	"github.com/Raster-Lab/J2KSwift-sub002/internal/ctxmodel"
)

// containerMagic tags a j2kcore-coded block file. This is a CLI-local
// persistence format for round-tripping through this tool, not a
// codestream marker encoding.
const containerMagic = "J2KC"

// writeContainer serializes a CodeBlock to w: a fixed header followed by
// one little-endian int32 cumulative byte count and float64 distortion per
// pass, then an int32 data length and the coded data.
func writeContainer(w io.Writer, cb *codeblock.CodeBlock) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(containerMagic); err != nil {
		return err
	}
	header := []int32{
		int32(cb.Width), int32(cb.Height), int32(cb.Orientation), int32(cb.BitDepth),
		int32(cb.GuardBits), int32(cb.Style), int32(cb.ZeroBitPlanes), int32(len(cb.Passes)),
	}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, p := range cb.Passes {
		if err := binary.Write(bw, binary.LittleEndian, int32(p.CumulativeBytes)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, p.Distortion); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, int32(len(cb.Data))); err != nil {
		return err
	}
	if _, err := bw.Write(cb.Data); err != nil {
		return err
	}
	return bw.Flush()
}

// readContainer reverses writeContainer.
func readContainer(r io.Reader) (*codeblock.CodeBlock, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(containerMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, err
	}
	if string(magic) != containerMagic {
		return nil, fmt.Errorf("not a j2kcore container (bad magic %q)", magic)
	}

	var header [8]int32
	for i := range header {
		if err := binary.Read(br, binary.LittleEndian, &header[i]); err != nil {
			return nil, err
		}
	}
	width, height, orientation, bitDepth, guardBits, style, zeroBitPlanes, passCount :=
		header[0], header[1], header[2], header[3], header[4], header[5], header[6], header[7]

	passes := make([]bitplane.PassDescriptor, passCount)
	for i := range passes {
		var cumulative int32
		var distortion float64
		if err := binary.Read(br, binary.LittleEndian, &cumulative); err != nil {
			return nil, err
		}
		if err := binary.Read(br, binary.LittleEndian, &distortion); err != nil {
			return nil, err
		}
		passes[i] = bitplane.PassDescriptor{CumulativeBytes: int(cumulative), Distortion: distortion}
	}

	var dataLen int32
	if err := binary.Read(br, binary.LittleEndian, &dataLen); err != nil {
		return nil, err
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, err
	}

	return &codeblock.CodeBlock{
		Width:         int(width),
		Height:        int(height),
		Orientation:   ctxmodel.Orientation(orientation),
		BitDepth:      int(bitDepth),
		GuardBits:     int(guardBits),
		Style:         bitplane.BlockStyle(style),
		Data:          data,
		Passes:        passes,
		ZeroBitPlanes: int(zeroBitPlanes),
	}, nil
}

// readCoefficients reads a plane of little-endian int32 samples from
// path, width*height of them.
func readCoefficients(path string, width, height int) ([]int32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	n := width * height
	if len(raw) != n*4 {
		return nil, fmt.Errorf("coefficient file has %d bytes, want %d for a %dx%d plane", len(raw), n*4, width, height)
	}
	coeffs := make([]int32, n)
	for i := range coeffs {
		coeffs[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return coeffs, nil
}

// writeCoefficients writes a plane of little-endian int32 samples.
func writeCoefficients(path string, coeffs []int32) error {
	raw := make([]byte, len(coeffs)*4)
	for i, v := range coeffs {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(v))
	}
	return os.WriteFile(path, raw, 0o644)
}
