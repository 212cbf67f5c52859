package keyexchange

import (
	"testing"

	"github.com/proregia/pumpcore/store"
)

func TestLoadOrGenerateDeviceGeneratesOnce(t *testing.T) {
	s := store.NewMemory()
	d1, err := LoadOrGenerateDevice(s)
	if err != nil {
		t.Fatalf("LoadOrGenerateDevice: %v", err)
	}
	d2, err := LoadOrGenerateDevice(s)
	if err != nil {
		t.Fatalf("LoadOrGenerateDevice (second load): %v", err)
	}
	if d1.ID != d2.ID {
		t.Fatalf("device_id changed across loads: %v != %v", d1.ID, d2.ID)
	}
	if d1.Private != d2.Private || d1.Public != d2.Public {
		t.Fatalf("keypair changed across loads")
	}
}

func TestLoadOrGenerateDeviceDistinctAcrossStores(t *testing.T) {
	d1, err := LoadOrGenerateDevice(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadOrGenerateDevice: %v", err)
	}
	d2, err := LoadOrGenerateDevice(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadOrGenerateDevice: %v", err)
	}
	if d1.ID == d2.ID {
		t.Fatalf("two independent stores produced the same device_id")
	}
}

func TestRelayURLRoundTrip(t *testing.T) {
	s := store.NewMemory()
	if _, ok, err := RelayURL(s); err != nil || ok {
		t.Fatalf("expected no relay URL configured, got ok=%v err=%v", ok, err)
	}
	if err := SetRelayURL(s, "https://relay.example"); err != nil {
		t.Fatalf("SetRelayURL: %v", err)
	}
	url, ok, err := RelayURL(s)
	if err != nil || !ok || url != "https://relay.example" {
		t.Fatalf("RelayURL = %q, %v, %v", url, ok, err)
	}
}
