package store

import (
	"path/filepath"
	"testing"
)

func openTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pumpcore.db")
	s, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreBytesRoundTrip(t *testing.T) {
	s := openTestBoltStore(t)
	if err := s.PutBytes(NamespaceKeyExchange, "relay_url", []byte("https://relay.example")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	v, ok, err := s.GetBytes(NamespaceKeyExchange, "relay_url")
	if err != nil || !ok {
		t.Fatalf("GetBytes: ok=%v err=%v", ok, err)
	}
	if string(v) != "https://relay.example" {
		t.Fatalf("GetBytes = %q", v)
	}
}

func TestBoltStoreMissingKey(t *testing.T) {
	s := openTestBoltStore(t)
	if _, ok, err := s.GetBytes(NamespaceCrypto, "shared_key"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
}

func TestBoltStoreCounterRoundTrip(t *testing.T) {
	s := openTestBoltStore(t)
	if err := s.PutUint64(NamespaceCrypto, "write_counter", 99); err != nil {
		t.Fatalf("PutUint64: %v", err)
	}
	if err := s.PutUint32(NamespaceCrypto, "reboot_counter", 3); err != nil {
		t.Fatalf("PutUint32: %v", err)
	}
	v64, ok, err := s.GetUint64(NamespaceCrypto, "write_counter")
	if err != nil || !ok || v64 != 99 {
		t.Fatalf("GetUint64 = %d, %v, %v", v64, ok, err)
	}
	v32, ok, err := s.GetUint32(NamespaceCrypto, "reboot_counter")
	if err != nil || !ok || v32 != 3 {
		t.Fatalf("GetUint32 = %d, %v, %v", v32, ok, err)
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pumpcore.db")
	s1, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	if err := s1.PutBytes(NamespaceDevice, "device_mac", []byte("EC:2A:F0:02:AF:6F")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen OpenBoltStore: %v", err)
	}
	defer s2.Close()
	v, ok, err := s2.GetBytes(NamespaceDevice, "device_mac")
	if err != nil || !ok {
		t.Fatalf("GetBytes after reopen: ok=%v err=%v", ok, err)
	}
	if string(v) != "EC:2A:F0:02:AF:6F" {
		t.Fatalf("GetBytes after reopen = %q", v)
	}
}

func TestBoltStoreRemove(t *testing.T) {
	s := openTestBoltStore(t)
	s.PutBytes(NamespaceCrypto, "shared_key", []byte{1, 2, 3})
	if err := s.Remove(NamespaceCrypto, "shared_key"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.GetBytes(NamespaceCrypto, "shared_key"); ok {
		t.Fatalf("key still present after Remove")
	}
}
