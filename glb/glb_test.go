package glb

import (
	"bytes"
	"testing"
)

// TestFixture checks Encode/Decode against a known-good value/complement pair.
func TestFixture(t *testing.T) {
	want := [Len]byte{0x19, 0x00, 0x00, 0x00, 0xE6, 0xFF, 0xFF, 0xFF}
	got := Encode(25)
	if got != want {
		t.Fatalf("Encode(25) = % x, want % x", got, want)
	}
	v, err := Decode(want[:])
	if err != nil || v != 25 {
		t.Fatalf("Decode(%x) = %d, %v; want 25, nil", want, v, err)
	}

	corrupt := want
	corrupt[7] ^= 0x01
	if _, err := Decode(corrupt[:]); err == nil {
		t.Fatalf("expected GlbCorrupt on flipped low bit")
	}
}

func TestRoundTripAllBitFlips(t *testing.T) {
	values := []int32{0, 1, -1, 25, 1 << 30, -(1 << 30), 2147483647, -2147483648}
	for _, v := range values {
		enc := Encode(v)
		got, err := Decode(enc[:])
		if err != nil || got != v {
			t.Fatalf("round trip failed for %d: got %d, err %v", v, got, err)
		}
		for i := range enc {
			for bit := 0; bit < 8; bit++ {
				flipped := enc
				flipped[i] ^= 1 << bit
				if _, err := Decode(flipped[:]); err == nil {
					t.Fatalf("single-bit flip at byte %d bit %d for value %d still decoded", i, bit, v)
				}
			}
		}
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFindIn(t *testing.T) {
	enc := Encode(42)
	buf := append([]byte{0xAA, 0xBB, 0xCC}, enc[:]...)
	buf = append(buf, 0x01, 0x02)

	v, ok := FindIn(buf)
	if !ok || v != 42 {
		t.Fatalf("FindIn = %d, %v; want 42, true", v, ok)
	}

	if _, ok := FindIn([]byte{1, 2, 3}); ok {
		t.Fatalf("FindIn on too-short buffer should fail")
	}
	if _, ok := FindIn(bytes.Repeat([]byte{0xAB}, 20)); ok {
		t.Fatalf("FindIn on random bytes should not find a spurious match")
	}
}

func TestBasalRateUnitsPerHour(t *testing.T) {
	if got := BasalRateUnitsPerHour(150); got != 1.5 {
		t.Fatalf("BasalRateUnitsPerHour(150) = %v, want 1.5", got)
	}
	if got := BasalRateUnitsPerHour(Unprogrammed); got != 0 {
		t.Fatalf("BasalRateUnitsPerHour(unprogrammed) = %v, want 0", got)
	}
}

func FuzzGlbRoundTrip(f *testing.F) {
	f.Add(int32(0))
	f.Add(int32(25))
	f.Add(int32(-1))
	f.Fuzz(func(t *testing.T, v int32) {
		enc := Encode(v)
		got, err := Decode(enc[:])
		if err != nil || got != v {
			t.Fatalf("round trip failed for %d", v)
		}
	})
}
