package mqc

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bits := []struct {
		bit int
		ctx int
	}{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {1, 0}, {0, 2}, {1, 2}, {1, 2}, {0, 0}, {1, 1},
	}

	enc := NewEncoder(3)
	for _, b := range bits {
		enc.Encode(b.bit, b.ctx)
	}
	data := enc.Finish(TerminationDefault)

	dec := NewDecoder(data, 3)
	for i, b := range bits {
		got := dec.Decode(b.ctx)
		if got != b.bit {
			t.Fatalf("bit %d: got %d, want %d", i, got, b.bit)
		}
	}
}

func TestEncodeDecodeRoundTripPredictableTermination(t *testing.T) {
	bits := make([]int, 64)
	for i := range bits {
		if i%3 == 0 {
			bits[i] = 1
		}
	}

	enc := NewEncoder(1)
	for _, b := range bits {
		enc.Encode(b, 0)
	}
	data := enc.Finish(TerminationPredictable)

	dec := NewDecoder(data, 1)
	for i, want := range bits {
		if got := dec.Decode(0); got != want {
			t.Fatalf("bit %d: got %d, want %d", i, got, want)
		}
	}
}

func TestByteStuffingNeverFollowsFFWithHighByte(t *testing.T) {
	enc := NewEncoder(2)
	for i := 0; i < 500; i++ {
		enc.Encode((i*7+3)%2, i%2)
	}
	data := enc.Finish(TerminationDefault)

	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] > 0x8F {
			t.Fatalf("byte 0xFF at %d followed by 0x%02X > 0x8F", i, data[i+1])
		}
	}
}

func TestBypassRoundTrip(t *testing.T) {
	raw := []int{1, 0, 0, 1, 1, 1, 0, 1, 0, 0, 1, 0}

	enc := NewEncoder(1)
	enc.BypassBegin()
	for _, b := range raw {
		enc.BypassEncode(b)
	}
	enc.BypassFinish(false)
	data := enc.PendingBytes()

	dec := NewDecoder(data, 1)
	dec.BypassBegin()
	for i, want := range raw {
		if got := dec.BypassDecode(); got != want {
			t.Fatalf("bypass bit %d: got %d, want %d", i, got, want)
		}
	}
}

func TestSegmentationSymbolRoundTrip(t *testing.T) {
	enc := NewEncoder(1)
	enc.Encode(1, 0)
	enc.EncodeSegmentationSymbol(0)
	data := enc.Finish(TerminationDefault)

	dec := NewDecoder(data, 1)
	if got := dec.Decode(0); got != 1 {
		t.Fatalf("leading bit: got %d, want 1", got)
	}
	if !dec.DecodeSegmentationSymbol(0) {
		t.Fatal("expected segmentation symbol to verify")
	}
}

func TestTruncatedInputIsFlagged(t *testing.T) {
	enc := NewEncoder(1)
	for i := 0; i < 200; i++ {
		enc.Encode((i / 3) % 2, 0)
	}
	data := enc.Finish(TerminationDefault)

	dec := NewDecoder(data[:len(data)/4], 1)
	for i := 0; i < 200; i++ {
		dec.Decode(0)
	}
	if !dec.Truncated() {
		t.Fatal("expected decoder to report truncated input")
	}
}

func TestStateTablesMatchPublishedSizes(t *testing.T) {
	if len(QeTable()) != NumStates {
		t.Fatalf("Qe table has %d entries, want %d", len(QeTable()), NumStates)
	}
	if len(NmpsTable()) != NumStates || len(NlpsTable()) != NumStates || len(SwitchTable()) != NumStates {
		t.Fatal("state transition tables must each have NumStates entries")
	}
}
