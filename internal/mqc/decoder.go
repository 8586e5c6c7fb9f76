package mqc

// Decoder mirrors Encoder: the A/C registers, a byte-feed position into an
// append-terminated input buffer, and a bit-pump counter (CT). EOS counts
// how many times the decoder ran past the real input and started
// synthesising the 0xFF 0xFF sentinel — callers use it to detect
// truncated input (spec "Truncated" failure mode).
type Decoder struct {
	data    []byte // input with a 0xFF 0xFF sentinel appended
	bp      int
	dataLen int // length of the real input, excluding the sentinel

	a  uint32
	c  uint32
	ct int
	// eos counts bytein() calls that had to fabricate sentinel bytes
	// because real input was exhausted.
	eos int

	contexts []Context
}

// NewDecoder creates a decoder over data with numContexts fresh contexts.
// A 0xFF 0xFF sentinel is appended so bytein() never reads past the slice;
// per ISO/IEC 15444-1 C.3.4 any 0xFF followed by a byte ≥ 0x90 marks the
// end of the coded segment, so a real encoder's output never collides
// with it.
func NewDecoder(data []byte, numContexts int) *Decoder {
	d := &Decoder{
		data:     appendSentinel(data),
		dataLen:  len(data),
		a:        0x8000,
		contexts: make([]Context, numContexts),
	}
	d.initDecoder()
	return d
}

func appendSentinel(data []byte) []byte {
	withSentinel := make([]byte, len(data)+2)
	copy(withSentinel, data)
	withSentinel[len(data)] = 0xFF
	withSentinel[len(data)+1] = 0xFF
	return withSentinel
}

// Rebind replaces the decoder's input while preserving context state —
// used between passes when the block style preserves contexts across a
// terminate_per_pass boundary instead of resetting them.
func (d *Decoder) Rebind(data []byte) {
	d.data = appendSentinel(data)
	d.bp = 0
	d.dataLen = len(data)
	d.eos = 0
	d.a = 0x8000
	d.c = 0
	d.ct = 0
	d.initDecoder()
}

// initDecoder implements ISO/IEC 15444-1 C.3.5, INITDEC.
func (d *Decoder) initDecoder() {
	if d.dataLen == 0 {
		d.c = 0xFF << 16
	} else {
		d.c = uint32(d.data[0]) << 16
	}
	d.bytein()
	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
}

// Decode decodes one binary symbol under the named context.
//
// Hot loop: called once per coefficient-bit test across every pass of
// every bit-plane of every block.
func (d *Decoder) Decode(contextID int) int {
	cx := &d.contexts[contextID]
	state := cx.state()
	mps := cx.mps()
	qe := qeTable[state]

	d.a -= qe

	var bit int
	if (d.c >> 16) < qe {
		if d.a < qe {
			d.a = qe
			bit = mps
			*cx = packContext(nmpsTable[state], mps)
		} else {
			d.a = qe
			bit = 1 - mps
			newMPS := mps
			if switchTable[state] == 1 {
				newMPS = 1 - mps
			}
			*cx = packContext(nlpsTable[state], newMPS)
		}
		d.renorm()
		return bit
	}

	d.c -= qe << 16
	if (d.a & 0x8000) != 0 {
		return mps
	}

	if d.a < qe {
		bit = 1 - mps
		newMPS := mps
		if switchTable[state] == 1 {
			newMPS = 1 - mps
		}
		*cx = packContext(nlpsTable[state], newMPS)
	} else {
		bit = mps
		*cx = packContext(nmpsTable[state], mps)
	}
	d.renorm()
	return bit
}

func (d *Decoder) renorm() {
	for d.a < 0x8000 {
		if d.ct == 0 {
			d.bytein()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
	}
}

// bytein implements ISO/IEC 15444-1 C.3.3, BYTEIN: it reverses the
// encoder's byte-stuffing rule, treating any 0xFF followed by a byte
// ≥ 0x90 as the terminator and refusing to advance past it (the decoder
// then free-runs on the synthesised sentinel, which is how Truncated
// input is tolerated rather than panicking).
func (d *Decoder) bytein() {
	next := d.data[d.bp+1]
	if d.data[d.bp] == 0xFF {
		if next > 0x8F {
			d.c += 0xFF00
			d.ct = 8
			d.eos++
		} else {
			d.bp++
			d.c += uint32(next) << 9
			d.ct = 7
		}
		return
	}
	d.bp++
	d.c += uint32(next) << 8
	d.ct = 8
}

// Truncated reports whether the decoder ran past real input and has been
// free-running on the synthesised sentinel — the caller's signal to
// surface a Truncated error alongside the best-effort reconstruction.
// Decoding a complete segment can still read up to two sentinel bytes
// (BYTEIN's look-ahead past the final coded byte), so only a count above
// two is reported.
func (d *Decoder) Truncated() bool { return d.eos > 2 }

// BypassBegin switches the decoder into raw (context-free) bit decoding,
// reading from the first byte of its input.
func (d *Decoder) BypassBegin() {
	d.bp = 0
	d.a = 0
	d.c = 0
	d.ct = 0
}

// BypassDecode decodes a single raw bit.
func (d *Decoder) BypassDecode() int {
	if d.ct == 0 {
		if d.c == 0xFF {
			next := d.data[d.bp]
			if next > 0x8F {
				d.c = 0xFF
				d.ct = 8
			} else {
				d.c = uint32(next)
				d.bp++
				d.ct = 7
			}
		} else {
			d.c = uint32(d.data[d.bp])
			d.bp++
			d.ct = 8
		}
	}
	d.ct--
	return int((d.c >> uint(d.ct)) & 0x01)
}

// ResetContext resets a single context to its fresh value.
func (d *Decoder) ResetContext(contextID int) { d.contexts[contextID] = 0 }

// ResetContexts resets every context.
func (d *Decoder) ResetContexts() {
	for i := range d.contexts {
		d.contexts[i] = 0
	}
}

// Restart reinitializes decoder registers after a terminated pass while
// leaving the byte position where it is, mirroring Encoder.TerminateRestart.
func (d *Decoder) Restart() {
	d.a = 0x8000
	d.c = 0
	d.ct = 0
}

// ContextState returns the raw packed (state, mps) byte for a context.
func (d *Decoder) ContextState(contextID int) Context { return d.contexts[contextID] }

// SetContextState installs a raw packed (state, mps) byte for a context.
func (d *Decoder) SetContextState(contextID int, raw uint8) { d.contexts[contextID] = Context(raw) }

// DecodeSegmentationSymbol decodes the four-bit SEGSYM pattern under the
// uniform context and reports whether it matched the expected (1,0,1,0)
// sequence — a mismatch signals a MalformedBitstream when
// segmentation_symbols is configured.
func (d *Decoder) DecodeSegmentationSymbol(uniformContextID int) bool {
	ok := true
	for i := 1; i < 5; i++ {
		if d.Decode(uniformContextID) != i%2 {
			ok = false
		}
	}
	return ok
}
