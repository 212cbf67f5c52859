package pumpcrypto

import "testing"

func TestHChaCha20Deterministic(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	nonce := make([]byte, 16)
	for i := range nonce {
		nonce[i] = byte(0x10 + i)
	}
	out1, err := HChaCha20(key, nonce)
	if err != nil {
		t.Fatalf("HChaCha20: %v", err)
	}
	out2, err := HChaCha20(key, nonce)
	if err != nil {
		t.Fatalf("HChaCha20: %v", err)
	}
	if len(out1) != 32 {
		t.Fatalf("HChaCha20 output length = %d, want 32", len(out1))
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("HChaCha20 not deterministic at byte %d", i)
		}
	}
}

func TestHChaCha20RejectsBadLengths(t *testing.T) {
	if _, err := HChaCha20(make([]byte, 31), make([]byte, 16)); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := HChaCha20(make([]byte, 32), make([]byte, 15)); err == nil {
		t.Fatalf("expected error for short nonce")
	}
}

func TestHChaCha20SensitiveToInputs(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 16)
	base, _ := HChaCha20(key, nonce)

	key2 := make([]byte, 32)
	key2[0] = 1
	flipped, _ := HChaCha20(key2, nonce)
	if string(base) == string(flipped) {
		t.Fatalf("flipping a key bit did not change HChaCha20 output")
	}

	nonce2 := make([]byte, 16)
	nonce2[0] = 1
	flippedNonce, _ := HChaCha20(key, nonce2)
	if string(base) == string(flippedNonce) {
		t.Fatalf("flipping a nonce bit did not change HChaCha20 output")
	}
}

func FuzzHChaCha20(f *testing.F) {
	f.Add(make([]byte, 32), make([]byte, 16))
	f.Fuzz(func(t *testing.T, key, nonce []byte) {
		if len(key) != 32 || len(nonce) != 16 {
			t.Skip()
		}
		out, err := HChaCha20(key, nonce)
		if err != nil {
			t.Fatalf("HChaCha20: %v", err)
		}
		if len(out) != 32 {
			t.Fatalf("output length = %d, want 32", len(out))
		}
	})
}
