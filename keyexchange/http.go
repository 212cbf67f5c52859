package keyexchange

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/proregia/pumpcore/pumperr"
)

// relayConnectTimeout and relayReadTimeout together bound the overall
// relay call.
const (
	relayConnectTimeout = 120 * time.Second
	relayReadTimeout    = 120 * time.Second
)

// HTTPExchanger is the HTTP JSON relay form: POST {base}/key-exchange
// with lowercase-hex string fields.
type HTTPExchanger struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPExchanger builds an HTTPExchanger with an explicit overall
// timeout and a transport tuned for this one relay call, rather than a
// shared default client.
func NewHTTPExchanger(baseURL string) *HTTPExchanger {
	return &HTTPExchanger{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout:   relayConnectTimeout + relayReadTimeout,
			Transport: &http.Transport{DisableCompression: true},
		},
	}
}

type httpExchangeRequest struct {
	Challenge     string `json:"challenge"`
	PumpPublicKey string `json:"pump_public_key"`
	AppPublicKey  string `json:"app_public_key"`
	BTAddress     string `json:"bt_address"`
	DeviceID      string `json:"device_id"`
}

type httpExchangeResponse struct {
	EncryptedBytes string `json:"encrypted_bytes"`
	ServerNonce    string `json:"server_nonce"`
}

// Exchange implements Exchanger over the HTTP JSON relay form.
func (e *HTTPExchanger) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error) {
	body := httpExchangeRequest{
		Challenge:     hex.EncodeToString(req.Challenge[:]),
		PumpPublicKey: hex.EncodeToString(req.PumpPublicKey[:]),
		AppPublicKey:  hex.EncodeToString(req.AppPublicKey[:]),
		BTAddress:     hex.EncodeToString(req.BTAddress[:]),
		DeviceID:      req.DeviceID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("keyexchange: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/key-exchange", e.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("keyexchange: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(httpReq)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: relay request: %v", pumperr.ErrRelayFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: read relay response: %v", pumperr.ErrRelayFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return ExchangeResponse{}, fmt.Errorf("%w: relay HTTP %d: %s", pumperr.ErrRelayFailure, resp.StatusCode, respBody)
	}

	var parsed httpExchangeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: malformed relay body: %v", pumperr.ErrRelayFailure, err)
	}
	encrypted, err := hex.DecodeString(parsed.EncryptedBytes)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: decode encrypted_bytes: %v", pumperr.ErrRelayFailure, err)
	}
	nonce, err := hex.DecodeString(parsed.ServerNonce)
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("%w: decode server_nonce: %v", pumperr.ErrRelayFailure, err)
	}

	return ExchangeResponse{EncryptedBytes: encrypted, ServerNonce: nonce}, nil
}

var _ Exchanger = (*HTTPExchanger)(nil)
