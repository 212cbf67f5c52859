package keyexchange

import "testing"

func TestEncodeDecodeStringField1RoundTrip(t *testing.T) {
	msg := encodeStringField(1, "hello-world")
	got, ok := decodeStringField1(msg)
	if !ok {
		t.Fatalf("decodeStringField1: not found")
	}
	if got != "hello-world" {
		t.Fatalf("decodeStringField1 = %q, want %q", got, "hello-world")
	}
}

func TestDecodeStringField1IgnoresOtherFields(t *testing.T) {
	var msg []byte
	msg = appendStringField(msg, 2, "not this one")
	msg = appendStringField(msg, 1, "the real value")
	got, ok := decodeStringField1(msg)
	if !ok || got != "the real value" {
		t.Fatalf("decodeStringField1 = %q, %v, want %q, true", got, ok, "the real value")
	}
}

func TestUpperHex(t *testing.T) {
	got := upperHex([]byte{0xab, 0xcd, 0xef})
	if got != "ABCDEF" {
		t.Fatalf("upperHex = %q, want %q", got, "ABCDEF")
	}
}

func TestEncodeEncryptKeyRequestContainsAllFields(t *testing.T) {
	req := ExchangeRequest{DeviceID: "dev-1"}
	req.Challenge[0] = 0x11
	req.PumpPublicKey[0] = 0x22
	req.AppPublicKey[0] = 0x33
	req.BTAddress = [6]byte{0xEC, 0x2A, 0xF0, 0x02, 0xAF, 0x6F}

	msg := encodeEncryptKeyRequest(req, "SERVERNONCE")
	if len(msg) == 0 {
		t.Fatalf("encodeEncryptKeyRequest produced empty message")
	}
	// field #1 should be the uppercase-hex challenge.
	v, ok := decodeStringField1(msg)
	if !ok {
		t.Fatalf("decodeStringField1: not found")
	}
	if len(v) != 64 {
		t.Fatalf("challenge field length = %d, want 64 hex chars", len(v))
	}
}

func TestRawCodecRoundTrip(t *testing.T) {
	c := rawCodec{}
	data, err := c.Marshal(rawMessage("hello"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out rawMessage
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("Unmarshal = %q, want %q", out, "hello")
	}
}
