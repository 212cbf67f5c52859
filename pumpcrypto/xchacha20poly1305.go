package pumpcrypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the length of an XChaCha20-Poly1305 nonce.
const NonceSize = 24

// KeySize is the length of an XChaCha20-Poly1305 key.
const KeySize = 32

// Overhead is the size of the authentication tag appended to ciphertext.
const Overhead = chacha20poly1305.Overhead

// XChaCha20Poly1305Encrypt seals plaintext under key and the 24-byte nonce,
// returning ciphertext‖tag. It derives an HChaCha20 subkey over
// nonce[0:16], then runs the IETF ChaCha20-Poly1305 AEAD keyed with that
// subkey and a 12-byte subnonce of 4 zero bytes ‖ nonce[16:24].
func XChaCha20Poly1305Encrypt(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := newXChaCha20Poly1305(key, nonce)
	if err != nil {
		return nil, err
	}
	subnonce := subnonceFor(nonce)
	return aead.Seal(nil, subnonce, plaintext, aad), nil
}

// XChaCha20Poly1305Decrypt opens ciphertext‖tag under key and the 24-byte
// nonce. A tag mismatch or malformed input both report the same generic
// failure — the session layer treats either as DecryptFailed.
func XChaCha20Poly1305Decrypt(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newXChaCha20Poly1305(key, nonce)
	if err != nil {
		return nil, err
	}
	subnonce := subnonceFor(nonce)
	plaintext, err := aead.Open(nil, subnonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("pumpcrypto: AEAD open failed: %w", err)
	}
	return plaintext, nil
}

func newXChaCha20Poly1305(key, nonce []byte) (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("pumpcrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("pumpcrypto: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	subkey, err := HChaCha20(key, nonce[:16])
	if err != nil {
		return nil, fmt.Errorf("pumpcrypto: derive subkey: %w", err)
	}
	aead, err := chacha20poly1305.New(subkey)
	if err != nil {
		return nil, fmt.Errorf("pumpcrypto: construct inner AEAD: %w", err)
	}
	return aead, nil
}

func subnonceFor(nonce []byte) []byte {
	sub := make([]byte, 12)
	copy(sub[4:], nonce[16:24])
	return sub
}
