package pumpcrypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyLen is the size in bytes of an X25519 private or public key.
const KeyLen = 32

// GenerateX25519Keypair produces a fresh ephemeral or device X25519 keypair
// using crypto/rand: read a random scalar, then multiply against the
// basepoint.
func GenerateX25519Keypair() (priv, pub [KeyLen]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, fmt.Errorf("pumpcrypto: generate private key: %w", err)
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, fmt.Errorf("pumpcrypto: compute public key: %w", err)
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// X25519 computes the Curve25519 Diffie-Hellman shared secret.
func X25519(private, peerPublic []byte) ([]byte, error) {
	if len(private) != KeyLen {
		return nil, fmt.Errorf("pumpcrypto: X25519 private key must be %d bytes, got %d", KeyLen, len(private))
	}
	if len(peerPublic) != KeyLen {
		return nil, fmt.Errorf("pumpcrypto: X25519 peer public key must be %d bytes, got %d", KeyLen, len(peerPublic))
	}
	ss, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("pumpcrypto: X25519: %w", err)
	}
	return ss, nil
}

// zeroNonce16 is the all-zero 16-byte HChaCha20 nonce used by
// DeriveSharedKey.
var zeroNonce16 = make([]byte, 16)

// DeriveSharedKey computes the 32-byte session key from the device's
// private X25519 key and the pump's raw 32-byte public key:
//
//	ss = X25519(private, peerPublic)
//	sharedKey = HChaCha20(ss, zero-16-byte-nonce)
func DeriveSharedKey(private, peerPublic []byte) ([]byte, error) {
	ss, err := X25519(private, peerPublic)
	if err != nil {
		return nil, err
	}
	return HChaCha20(ss, zeroNonce16)
}
