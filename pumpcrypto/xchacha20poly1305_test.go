package pumpcrypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

// TestRoundTrip exercises the core property: decrypt(encrypt(P)) == P for
// arbitrary plaintext, key and nonce, with empty AAD.
func TestRoundTrip(t *testing.T) {
	key := randBytes(t, KeySize)
	nonce := randBytes(t, NonceSize)
	plaintexts := [][]byte{
		{},
		[]byte("a"),
		make([]byte, 56),
		make([]byte, 1000),
	}
	for _, p := range plaintexts {
		ct, err := XChaCha20Poly1305Encrypt(key, nonce, nil, p)
		if err != nil {
			t.Fatalf("Encrypt(len=%d): %v", len(p), err)
		}
		if len(ct) != len(p)+Overhead {
			t.Fatalf("ciphertext length = %d, want %d", len(ct), len(p)+Overhead)
		}
		pt, err := XChaCha20Poly1305Decrypt(key, nonce, nil, ct)
		if err != nil {
			t.Fatalf("Decrypt(len=%d): %v", len(p), err)
		}
		if !bytes.Equal(pt, p) {
			t.Fatalf("round trip mismatch for len=%d", len(p))
		}
	}
}

// TestBitFlipFailsToDecrypt covers the second half of the round-trip
// property: flipping any bit in ciphertext or tag must cause Decrypt to
// fail rather than silently returning corrupted plaintext.
func TestBitFlipFailsToDecrypt(t *testing.T) {
	key := randBytes(t, KeySize)
	nonce := randBytes(t, NonceSize)
	plaintext := []byte("start_tbr percent=50 duration=30")

	ct, err := XChaCha20Poly1305Encrypt(key, nonce, nil, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	for i := 0; i < len(ct); i++ {
		flipped := make([]byte, len(ct))
		copy(flipped, ct)
		flipped[i] ^= 0x01
		if _, err := XChaCha20Poly1305Decrypt(key, nonce, nil, flipped); err == nil {
			t.Fatalf("flipping bit in byte %d did not cause decrypt failure", i)
		}
	}
}

func TestDecryptRejectsWrongKeyOrNonce(t *testing.T) {
	key := randBytes(t, KeySize)
	nonce := randBytes(t, NonceSize)
	plaintext := []byte("status request")
	ct, err := XChaCha20Poly1305Encrypt(key, nonce, nil, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrongKey := randBytes(t, KeySize)
	if _, err := XChaCha20Poly1305Decrypt(wrongKey, nonce, nil, ct); err == nil {
		t.Fatalf("expected decrypt failure with wrong key")
	}

	wrongNonce := randBytes(t, NonceSize)
	if _, err := XChaCha20Poly1305Decrypt(key, wrongNonce, nil, ct); err == nil {
		t.Fatalf("expected decrypt failure with wrong nonce")
	}
}

func TestEncryptRejectsBadLengths(t *testing.T) {
	if _, err := XChaCha20Poly1305Encrypt(make([]byte, 31), make([]byte, NonceSize), nil, nil); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := XChaCha20Poly1305Encrypt(make([]byte, KeySize), make([]byte, 23), nil, nil); err == nil {
		t.Fatalf("expected error for short nonce")
	}
}

func FuzzXChaCha20Poly1305RoundTrip(f *testing.F) {
	f.Add(make([]byte, KeySize), make([]byte, NonceSize), []byte("hello"))
	f.Fuzz(func(t *testing.T, key, nonce, plaintext []byte) {
		if len(key) != KeySize || len(nonce) != NonceSize {
			t.Skip()
		}
		ct, err := XChaCha20Poly1305Encrypt(key, nonce, nil, plaintext)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		pt, err := XChaCha20Poly1305Decrypt(key, nonce, nil, ct)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("round trip mismatch")
		}
	})
}
