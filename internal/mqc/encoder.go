package mqc

// bypassCtInit marks an encoder's bit counter as "not yet primed" for raw
// (context-free) bypass coding, distinguishing it from a real in-range
// counter value.
const bypassCtInit = 0xDEADBEEF

// Encoder is the MQ arithmetic encoder's state record: the A/C registers,
// a bit counter (CT), and an output buffer with the one-byte carry-delay
// slot the byte-out rule requires. It carries no behaviour beyond Annex C;
// callers own the context array's semantic meaning.
type Encoder struct {
	buffer []byte // buffer[0] is the carry-delay dummy byte
	start  int
	bp     int

	a  uint32
	c  uint32
	ct int

	contexts []Context
}

// NewEncoder allocates an encoder with numContexts fresh (state 0, MPS 0)
// contexts. Callers that need the standard's named initial states
// (uniform=46, run-length=3, zero-coding=4, ...) set them with
// SetContextState immediately after construction.
func NewEncoder(numContexts int) *Encoder {
	return &Encoder{
		buffer:   make([]byte, 1, 1024),
		start:    1,
		a:        0x8000,
		ct:       12,
		contexts: make([]Context, numContexts),
	}
}

// Encode encodes one binary decision under the named context, per
// ISO/IEC 15444-1 C.2.1 (encoding procedure). This is the hot loop of the
// whole coder: every coefficient bit in every pass goes through it.
func (e *Encoder) Encode(bit int, contextID int) {
	cx := &e.contexts[contextID]
	state := cx.state()
	mps := cx.mps()
	qe := qeTable[state]

	if bit == mps {
		e.a -= qe
		if (e.a & 0x8000) == 0 {
			if e.a < qe {
				e.a = qe
			} else {
				e.c += qe
			}
			*cx = packContext(nmpsTable[state], mps)
			e.renorm()
		} else {
			e.c += qe
		}
		return
	}

	e.a -= qe
	if e.a < qe {
		e.c += qe
	} else {
		e.a = qe
	}
	newMPS := mps
	if switchTable[state] == 1 {
		newMPS = 1 - mps
	}
	*cx = packContext(nlpsTable[state], newMPS)
	e.renorm()
}

// renorm doubles A (and shifts C alongside it) until A regains its top
// bit, emitting bytes as CT exhausts.
func (e *Encoder) renorm() {
	for e.a < 0x8000 {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteOut()
		}
	}
}

// byteOut implements the byte-stuffing rule of C.2.3: a 0xFF byte already
// emitted forces the next byte to carry only 7 bits (its bit 7 is zero by
// construction), so no 0xFF byte in the stream can ever be followed by a
// byte ≥ 0x90 — the range markers reserve.
func (e *Encoder) byteOut() {
	if e.bp >= len(e.buffer) {
		e.grow(e.bp)
	}

	if e.buffer[e.bp] == 0xFF {
		e.bp++
		e.grow(e.bp)
		e.buffer[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
		return
	}

	if (e.c & 0x8000000) == 0 {
		e.bp++
		e.grow(e.bp)
		e.buffer[e.bp] = byte(e.c >> 19)
		e.c &= 0x7FFFF
		e.ct = 8
		return
	}

	e.buffer[e.bp]++
	if e.buffer[e.bp] == 0xFF {
		e.c &= 0x7FFFFFF
		e.bp++
		e.grow(e.bp)
		e.buffer[e.bp] = byte(e.c >> 20)
		e.c &= 0xFFFFF
		e.ct = 7
		return
	}

	e.bp++
	e.grow(e.bp)
	e.buffer[e.bp] = byte(e.c >> 19)
	e.c &= 0x7FFFF
	e.ct = 8
}

func (e *Encoder) grow(idx int) {
	if idx < len(e.buffer) {
		return
	}
	needed := idx + 1
	if needed <= cap(e.buffer) {
		e.buffer = e.buffer[:needed]
		return
	}
	newCap := cap(e.buffer) * 2
	if newCap < needed {
		newCap = needed
	}
	grown := make([]byte, needed, newCap)
	copy(grown, e.buffer)
	e.buffer = grown
}

func (e *Encoder) setBits() {
	tempC := e.c + e.a
	e.c |= 0xFFFF
	if e.c >= tempC {
		e.c -= 0x8000
	}
}

// Finish flushes the encoder per the requested termination discipline and
// returns the coded segment accumulated since construction.
func (e *Encoder) Finish(mode Termination) []byte {
	switch mode {
	case TerminationPredictable, TerminationNearOptimal:
		// Both disciplines trim the trailing byte to the minimum count
		// compatible with a unique decode (ISO/IEC 15444-1 Annex C,
		// PTERM); "predictable" and "near-optimal" name the same
		// byte-out sequence from two angles — the decoder can
		// recompute the exact trailing byte either way.
		e.flushERTERM()
	default:
		e.flushDefault()
	}
	if e.bp < e.start {
		return []byte{}
	}
	return e.buffer[e.start:e.bp]
}

func (e *Encoder) flushDefault() {
	e.setBits()
	e.c <<= uint(e.ct)
	e.byteOut()
	e.c <<= uint(e.ct)
	e.byteOut()
	if e.buffer[e.bp] != 0xFF {
		e.bp++
	}
}

// flushERTERM trims the final byte to the minimum number of bits that
// still decode uniquely (ISO/IEC 15444-1 Annex C, ERTERM).
func (e *Encoder) flushERTERM() {
	k := 11 - e.ct + 1
	for k > 0 {
		e.c <<= uint(e.ct)
		e.ct = 0
		e.byteOut()
		k -= e.ct
	}
	if e.buffer[e.bp] != 0xFF {
		e.byteOut()
	}
}

// PendingBytes returns the bytes accumulated so far without terminating
// the coder — used by the bit-plane coder to measure a pass's rate
// contribution in layered (non-terminated-per-pass) encoding.
func (e *Encoder) PendingBytes() []byte {
	if e.bp < e.start {
		return []byte{}
	}
	return e.buffer[e.start:e.bp]
}

// NumBytes is len(PendingBytes()), exposed separately to avoid a slice
// allocation on the rate-measurement hot path.
func (e *Encoder) NumBytes() int {
	if e.bp < e.start {
		return 0
	}
	return e.bp - e.start
}

// FlushToOutput performs the default flush's byte-out sequence without
// returning a slice — used when a pass terminates but encoding continues
// into the next pass's bytes in the same buffer (TerminatePerPass block
// style without resetting the buffer position).
func (e *Encoder) FlushToOutput() {
	e.flushDefault()
}

// TerminateRestart terminates a predictable (PTERM) pass and restarts
// encoder state so that a following pass begins a fresh MQ segment at the
// current buffer position, per OpenJPEG's opj_mqc_restart_init_enc.
func (e *Encoder) TerminateRestart() {
	e.flushERTERM()
	e.a = 0x8000
	e.c = 0
	e.ct = 12
	if e.bp > e.start-1 {
		e.bp--
	}
	if e.bp >= 0 && e.bp < len(e.buffer) && e.buffer[e.bp] == 0xFF {
		e.ct = 13
	}
}

// BypassBegin switches the encoder into raw (context-free) bit coding.
// Raw bytes are written at bp, so a fresh encoder starts past the
// carry-delay slot.
func (e *Encoder) BypassBegin() {
	if e.bp < e.start {
		e.bp = e.start
	}
	e.c = 0
	e.ct = bypassCtInit
}

// BypassEncode emits a single raw bit, used for the selective
// arithmetic-coding bypass block style below the switch bit-plane.
func (e *Encoder) BypassEncode(bit int) {
	if e.ct == bypassCtInit {
		e.ct = 8
	}
	e.ct--
	e.c += uint32(bit) << uint(e.ct)
	if e.ct == 0 {
		if e.bp >= len(e.buffer) {
			e.grow(e.bp)
		}
		e.buffer[e.bp] = byte(e.c)
		e.ct = 8
		if e.buffer[e.bp] == 0xFF {
			e.ct = 7
		}
		e.bp++
		e.c = 0
	}
}

// BypassFinish flushes raw-mode encoding. When ertermLike is set the flush
// follows the same "must not end in 0xFF" discipline ERTERM uses so a
// following terminated pass can restart cleanly.
func (e *Encoder) BypassFinish(ertermLike bool) {
	switch {
	case e.ct < 7 || (e.ct == 7 && (ertermLike || (e.bp > 0 && e.buffer[e.bp-1] != 0xFF))):
		bitValue := 0
		for e.ct > 0 {
			e.ct--
			e.c += uint32(bitValue) << uint(e.ct)
			if bitValue == 0 {
				bitValue = 1
			} else {
				bitValue = 0
			}
		}
		if e.bp >= len(e.buffer) {
			e.grow(e.bp)
		}
		e.buffer[e.bp] = byte(e.c)
		e.bp++
	case e.ct == 7 && e.bp > 0 && e.buffer[e.bp-1] == 0xFF:
		if !ertermLike {
			e.bp--
		}
	case e.ct == 8 && !ertermLike && e.bp > 1 && e.buffer[e.bp-1] == 0x7F && e.buffer[e.bp-2] == 0xFF:
		e.bp -= 2
	}
}

// EncodeSegmentationSymbol emits the four-bit SEGSYM pattern (1,0,1,0)
// under the uniform context, used to verify at decode time that passes
// stayed in sync when the segmentation_symbols block style is set.
func (e *Encoder) EncodeSegmentationSymbol(uniformContextID int) {
	for i := 1; i < 5; i++ {
		e.Encode(i%2, uniformContextID)
	}
}

// ResetContext resets a single context to its fresh (state 0, MPS 0) value.
func (e *Encoder) ResetContext(contextID int) {
	e.contexts[contextID] = 0
}

// ResetContexts resets every context to its fresh (state 0, MPS 0) value.
func (e *Encoder) ResetContexts() {
	for i := range e.contexts {
		e.contexts[i] = 0
	}
}

// ContextState returns the raw packed (state, mps) byte for a context.
func (e *Encoder) ContextState(contextID int) Context { return e.contexts[contextID] }

// SetContextState sets a context's raw packed (state, mps) byte; used to
// install the standard's non-zero initial states (uniform, run-length,
// zero-coding) before the first pass.
func (e *Encoder) SetContextState(contextID int, raw uint8) { e.contexts[contextID] = Context(raw) }
