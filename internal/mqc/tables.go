// Package mqc implements the MQ binary arithmetic coder used by JPEG 2000
// Tier-1 entropy coding.
//
// Reference: ISO/IEC 15444-1:2019 Annex C.
package mqc

// Context is a (state_index, mps) pair packed into a single byte: bit 7
// carries the current MPS, the low 7 bits index the Qe probability-state
// table. Packing the pair this way (rather than two struct fields) keeps a
// block's whole context array a single contiguous []uint8, which is what
// both the encoder and decoder hot loops index millions of times per block.
type Context uint8

// NumStates is the number of entries in the Qe probability-estimation
// table (Table C.2 of the standard).
const NumStates = 47

func packContext(state uint8, mps int) Context {
	return Context(state) | Context(mps)<<7
}

func (c Context) state() uint8 { return uint8(c) & 0x7F }
func (c Context) mps() int     { return int(c >> 7) }

// qeTable holds the Qe probability estimate for each of the 47 states.
var qeTable = [NumStates]uint32{
	0x5601, 0x3401, 0x1801, 0x0AC1, 0x0521, 0x0221, 0x5601, 0x5401,
	0x4801, 0x3801, 0x3001, 0x2401, 0x1C01, 0x1601, 0x5601, 0x5401,
	0x5101, 0x4801, 0x3801, 0x3401, 0x3001, 0x2801, 0x2401, 0x2201,
	0x1C01, 0x1801, 0x1601, 0x1401, 0x1201, 0x1101, 0x0AC1, 0x09C1,
	0x08A1, 0x0521, 0x0441, 0x02A1, 0x0221, 0x0141, 0x0111, 0x0085,
	0x0049, 0x0025, 0x0015, 0x0009, 0x0005, 0x0001, 0x5601,
}

// nmpsTable holds the next state on an MPS decision.
var nmpsTable = [NumStates]uint8{
	1, 2, 3, 4, 5, 38, 7, 8,
	9, 10, 11, 12, 13, 29, 15, 16,
	17, 18, 19, 20, 21, 22, 23, 24,
	25, 26, 27, 28, 29, 30, 31, 32,
	33, 34, 35, 36, 37, 38, 39, 40,
	41, 42, 43, 44, 45, 45, 46,
}

// nlpsTable holds the next state on an LPS decision.
var nlpsTable = [NumStates]uint8{
	1, 6, 9, 12, 29, 33, 6, 14,
	14, 14, 17, 18, 20, 21, 14, 14,
	15, 16, 17, 18, 19, 19, 20, 21,
	22, 23, 24, 25, 26, 27, 28, 29,
	30, 31, 32, 33, 34, 35, 36, 37,
	38, 39, 40, 41, 42, 43, 46,
}

// switchTable marks states where an LPS decision also flips MPS.
var switchTable = [NumStates]uint8{
	1, 0, 0, 0, 0, 0, 1, 0,
	0, 0, 0, 0, 0, 0, 1, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0,
}

// QeTable exposes the Qe table for cross-checking against the standard's
// published values in tests.
func QeTable() [NumStates]uint32 { return qeTable }

// NmpsTable exposes the NMPS transition table.
func NmpsTable() [NumStates]uint8 { return nmpsTable }

// NlpsTable exposes the NLPS transition table.
func NlpsTable() [NumStates]uint8 { return nlpsTable }

// SwitchTable exposes the MPS-switch table.
func SwitchTable() [NumStates]uint8 { return switchTable }

// Termination selects the flush discipline used by Encoder.Finish.
type Termination int

const (
	// TerminationDefault carries out any pending byte and writes a
	// generic terminator; decoders must be prepared for any trailing
	// bit pattern a correct encoder may produce.
	TerminationDefault Termination = iota
	// TerminationPredictable flushes with the same trimmed byte-out
	// sequence as TerminationNearOptimal, so the final byte is derived
	// only from preceding coded symbols and a decoder can verify it was
	// produced that way (ISO/IEC 15444-1 Annex C, PTERM).
	TerminationPredictable
	// TerminationNearOptimal trims the final partial byte to the
	// minimum number of bits compatible with a unique decode (ERTERM).
	TerminationNearOptimal
)
