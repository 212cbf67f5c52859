package frame

import (
	"bytes"
	"testing"
)

func TestEmptyPayload(t *testing.T) {
	frames, err := Chunk(nil)
	if err != nil {
		t.Fatalf("Chunk(nil): %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != 1 || frames[0][0] != 0x10 {
		t.Fatalf("empty payload should produce a single 0x10 sentinel frame, got %v", frames)
	}
	if got := TotalFrames(frames[0][0]); got != 1 {
		t.Fatalf("TotalFrames(0x10) = %d, want 1", got)
	}
	if got := Assemble(frames); len(got) != 0 {
		t.Fatalf("Assemble of empty-sentinel frame should be empty, got %v", got)
	}
}

// TestFixture checks that a 40-byte envelope produces 3 frames of length
// 20, 20, 3 (19+19+2 payload bytes) with first bytes 0x13, 0x23, 0x33.
func TestFixture(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames, err := Chunk(payload)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	wantLens := []int{20, 20, 3}
	wantHeaders := []byte{0x13, 0x23, 0x33}
	for i, f := range frames {
		if len(f) != wantLens[i] {
			t.Fatalf("frame %d length = %d, want %d", i, len(f), wantLens[i])
		}
		if f[0] != wantHeaders[i] {
			t.Fatalf("frame %d header = 0x%02x, want 0x%02x", i, f[0], wantHeaders[i])
		}
	}
	if got := Assemble(frames); !bytes.Equal(got, payload) {
		t.Fatalf("Assemble(Chunk(payload)) != payload")
	}
}

func TestRoundTripLaws(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		frames, err := Chunk(payload)
		if err != nil {
			t.Fatalf("Chunk(len=%d): %v", n, err)
		}
		if got := Assemble(frames); !bytes.Equal(got, payload) {
			t.Fatalf("round trip failed for len=%d", n)
		}
		if got := TotalFrames(frames[0][0]); got != len(frames) {
			t.Fatalf("TotalFrames mismatch for len=%d: got %d, want %d", n, got, len(frames))
		}
		for i, f := range frames {
			if len(f) > 20 {
				t.Fatalf("frame %d too long: %d bytes", i, len(f))
			}
			if i < len(frames)-1 && len(f) != 20 && n != 0 {
				t.Fatalf("non-terminal frame %d should be 20 bytes, got %d", i, len(f))
			}
		}
	}
}

func TestChunkRejectsOversizedPayload(t *testing.T) {
	if _, err := Chunk(make([]byte, MaxPayload+1)); err == nil {
		t.Fatalf("expected error for payload exceeding %d bytes", MaxPayload)
	}
}

func TestWriterStopsOnFirstFailure(t *testing.T) {
	var written [][]byte
	callCount := 0
	w := NewWriter(func(f []byte) error {
		callCount++
		if callCount == 2 {
			return errFail
		}
		written = append(written, f)
		return nil
	})
	payload := make([]byte, 40)
	err := w.WriteMessage(payload)
	if err == nil {
		t.Fatalf("expected error from second frame write")
	}
	if len(written) != 1 {
		t.Fatalf("expected exactly 1 successful write before failure, got %d", len(written))
	}
}

var errFail = &fixedErr{"transport failure"}

type fixedErr struct{ msg string }

func (e *fixedErr) Error() string { return e.msg }

func TestReaderAssemblesMultiFrameMessage(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames, _ := Chunk(payload)
	idx := 1
	r := NewReader(
		func() ([]byte, error) { return frames[0], nil },
		func() ([]byte, error) {
			f := frames[idx]
			idx++
			return f, nil
		},
	)
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadMessage returned wrong payload")
	}
}

func TestReaderAbortsOnMissingFrame(t *testing.T) {
	r := NewReader(
		func() ([]byte, error) { return []byte{0x23, 0x00}, nil }, // claims 3 total frames
		func() ([]byte, error) { return nil, errFail },
	)
	if _, err := r.ReadMessage(); err == nil {
		t.Fatalf("expected error when a subsequent frame read fails")
	}
}

func FuzzChunkAssemble(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x01, 0x02, 0x03})
	f.Fuzz(func(t *testing.T, payload []byte) {
		if len(payload) > MaxPayload {
			t.Skip()
		}
		frames, err := Chunk(payload)
		if err != nil {
			t.Fatalf("Chunk: %v", err)
		}
		if got := Assemble(frames); !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch")
		}
	})
}
