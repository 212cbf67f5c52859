package keyexchange

import "context"

// ExchangeRequest carries the fields the relay's /key-exchange call needs.
type ExchangeRequest struct {
	Challenge     [32]byte
	PumpPublicKey [32]byte
	AppPublicKey  [32]byte
	BTAddress     [6]byte
	DeviceID      string
}

// ExchangeResponse carries the relay's response. ServerNonce is opaque to
// the core and only threaded through for logging/debugging.
type ExchangeResponse struct {
	EncryptedBytes []byte
	ServerNonce    []byte
}

// Exchanger abstracts the relay transport so controller depends on
// neither the HTTP nor the gRPC form directly; the two are equivalent
// and either may be used.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResponse, error)
}
