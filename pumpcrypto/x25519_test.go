package pumpcrypto

import "testing"

func TestX25519DiffieHellmanAgreement(t *testing.T) {
	aPriv, aPub, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	bPriv, bPub, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}

	ssA, err := X25519(aPriv[:], bPub[:])
	if err != nil {
		t.Fatalf("X25519 (A side): %v", err)
	}
	ssB, err := X25519(bPriv[:], aPub[:])
	if err != nil {
		t.Fatalf("X25519 (B side): %v", err)
	}
	if string(ssA) != string(ssB) {
		t.Fatalf("shared secrets disagree")
	}
}

func TestX25519RejectsBadLengths(t *testing.T) {
	if _, err := X25519(make([]byte, 31), make([]byte, 32)); err == nil {
		t.Fatalf("expected error for short private key")
	}
	if _, err := X25519(make([]byte, 32), make([]byte, 16)); err == nil {
		t.Fatalf("expected error for short peer public key")
	}
}

func TestDeriveSharedKeyAgreesBothSides(t *testing.T) {
	aPriv, aPub, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	bPriv, bPub, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}

	keyA, err := DeriveSharedKey(aPriv[:], bPub[:])
	if err != nil {
		t.Fatalf("DeriveSharedKey (A side): %v", err)
	}
	keyB, err := DeriveSharedKey(bPriv[:], aPub[:])
	if err != nil {
		t.Fatalf("DeriveSharedKey (B side): %v", err)
	}
	if len(keyA) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(keyA))
	}
	if string(keyA) != string(keyB) {
		t.Fatalf("derived shared keys disagree")
	}
}

func TestGenerateX25519KeypairProducesDistinctKeys(t *testing.T) {
	priv1, pub1, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	priv2, pub2, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair: %v", err)
	}
	if priv1 == priv2 {
		t.Fatalf("two keypairs produced identical private keys")
	}
	if pub1 == pub2 {
		t.Fatalf("two keypairs produced identical public keys")
	}
}
