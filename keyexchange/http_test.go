package keyexchange

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPExchangerRoundTrip(t *testing.T) {
	var received httpExchangeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/key-exchange" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := httpExchangeResponse{
			EncryptedBytes: hex.EncodeToString([]byte("encrypted-payload")),
			ServerNonce:    hex.EncodeToString([]byte("nonce")),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewHTTPExchanger(server.URL)
	req := ExchangeRequest{DeviceID: "device-123"}
	req.Challenge[0] = 0xAB
	req.PumpPublicKey[0] = 0xCD
	req.AppPublicKey[0] = 0xEF
	req.BTAddress = [6]byte{0xEC, 0x2A, 0xF0, 0x02, 0xAF, 0x6F}

	resp, err := e.Exchange(context.Background(), req)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if string(resp.EncryptedBytes) != "encrypted-payload" {
		t.Fatalf("EncryptedBytes = %q", resp.EncryptedBytes)
	}
	if received.Challenge != "ab00000000000000000000000000000000000000000000000000000000000000" {
		t.Fatalf("challenge hex mismatch: %s", received.Challenge)
	}
	if len(received.Challenge) != 64 {
		t.Fatalf("challenge hex length = %d, want 64", len(received.Challenge))
	}
	if received.DeviceID != "device-123" {
		t.Fatalf("device_id mismatch: %s", received.DeviceID)
	}
}

func TestHTTPExchangerNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("relay down"))
	}))
	defer server.Close()

	e := NewHTTPExchanger(server.URL)
	if _, err := e.Exchange(context.Background(), ExchangeRequest{}); err == nil {
		t.Fatalf("expected error for non-200 relay response")
	}
}
