// Package pumperr defines the sentinel error values shared across the
// protocol engine's layers (session, ble, keyexchange, controller). Callers
// wrap these with fmt.Errorf("...: %w", ...) for context and unwrap with
// errors.Is.
package pumperr

import "errors"

var (
	// ErrTransport reports a BLE read/write or connect failure. The
	// critical-retry wrapper treats this as transient for idempotent-safe
	// commands.
	ErrTransport = errors.New("pumperr: transport error")

	// ErrAuthFailure reports a rejected authentication write. Not
	// retryable without a fresh connection.
	ErrAuthFailure = errors.New("pumperr: authentication failure")

	// ErrFraming reports a reassembled payload too short for its fixed
	// layout; the caller must abort the episode rather than return partial
	// data. A frame set missing one or more tails is reported by the ble
	// pipeline as ErrTransport, not ErrFraming.
	ErrFraming = errors.New("pumperr: framing error")

	// ErrDecryptFailed reports an AEAD tag mismatch or an envelope
	// shorter than the minimum. The controller treats this as "key dead"
	// and triggers single-shot renewal.
	ErrDecryptFailed = errors.New("pumperr: decrypt failed")

	// ErrCrcInvalid reports a CRC16 mismatch on a CRC-bearing response.
	ErrCrcInvalid = errors.New("pumperr: CRC invalid")

	// ErrGlbCorrupt reports a GLB self-check failure.
	ErrGlbCorrupt = errors.New("pumperr: GLB value corrupt")

	// ErrKeyMissing reports that no shared key is persisted; the
	// controller transitions to NeedsKeyExchange.
	ErrKeyMissing = errors.New("pumperr: no persisted shared key")

	// ErrNeedsKeyExchange is surfaced by the controller when renewal is
	// required but cannot be attempted inline (e.g. relay unconfigured).
	ErrNeedsKeyExchange = errors.New("pumperr: key exchange required")

	// ErrRelayFailure reports a non-success relay response (HTTP or
	// gRPC) or a malformed body. Renewal fails and NeedsKeyExchange is
	// signaled.
	ErrRelayFailure = errors.New("pumperr: relay failure")

	// ErrKeyValidationFailed reports that the post-renewal status read
	// failed; the new key is discarded and NeedsKeyExchange is signaled.
	ErrKeyValidationFailed = errors.New("pumperr: key validation failed")

	// ErrTimeout reports a bounded wait (bolus terminal state, BLE step)
	// elapsing without resolution. Callers must not assume success or
	// failure of the pump-side action.
	ErrTimeout = errors.New("pumperr: timeout")
)
