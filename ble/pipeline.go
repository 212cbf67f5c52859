package ble

import (
	"context"
	"errors"
	"fmt"

	"github.com/proregia/pumpcore/crc16"
	"github.com/proregia/pumpcore/frame"
	"github.com/proregia/pumpcore/pumperr"
	"github.com/proregia/pumpcore/session"
)

// Pipeline is the encrypted command/response engine layered over a Facade
// and a session.Cryptor.
type Pipeline struct {
	facade  Facade
	cryptor *session.Cryptor

	// countersSynced tracks whether the installed cryptor has observed at
	// least one successful decrypt since being installed. Cleared whenever
	// a new cryptor is installed.
	countersSynced bool

	// LastDecryptFailed records whether ReadResponse's decrypt step failed
	// on its last call, so the caller (the controller) can distinguish a
	// dead key from a BLE glitch.
	LastDecryptFailed bool
}

// NewPipeline wraps a Facade; the cryptor is installed separately via
// InstallCryptor once the caller has one.
func NewPipeline(facade Facade) *Pipeline {
	return &Pipeline{facade: facade}
}

// InstallCryptor installs a fresh session cryptor and marks counters
// unsynced, forcing the next command to go through a counter-sync
// preflight read before any write.
func (p *Pipeline) InstallCryptor(c *session.Cryptor) {
	p.cryptor = c
	p.countersSynced = false
	p.LastDecryptFailed = false
}

// CountersSynced reports whether a cryptor is installed and has observed
// at least one successful decrypt.
func (p *Pipeline) CountersSynced() bool {
	return p.countersSynced
}

// Facade exposes the underlying BLE primitive set for operations the
// encrypted pipeline itself doesn't cover, such as subscribing to the
// plaintext bolus-notification channel.
func (p *Pipeline) Facade() Facade {
	return p.facade
}

// SendCommand runs the encrypted write pipeline: optional CRC append,
// counter-sync preflight, encrypt, chunk, and sequential frame writes with
// no partial retry.
func (p *Pipeline) SendCommand(ctx context.Context, uuid CharUUID, payload []byte, addCRC bool) error {
	if p.cryptor == nil {
		return pumperr.ErrKeyMissing
	}
	if addCRC {
		payload = crc16.Append(payload)
	}

	if !p.countersSynced {
		if _, err := p.ReadResponse(ctx, Characteristics.SystemStatus, true); err != nil {
			return fmt.Errorf("ble: counter-sync status read: %w", err)
		}
	}

	envelope, err := p.cryptor.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("ble: encrypt command: %w", err)
	}

	writer := frame.NewWriter(func(f []byte) error {
		if err := p.facade.WriteDefault(ctx, uuid, f); err != nil {
			return fmt.Errorf("%w: %v", pumperr.ErrTransport, err)
		}
		return nil
	})
	if err := writer.WriteMessage(envelope); err != nil {
		return fmt.Errorf("ble: write command: %w", err)
	}
	return nil
}

// ReadResponse runs the encrypted read pipeline: read and reassemble
// frames, decrypt, and optionally verify+strip a CRC trailer.
func (p *Pipeline) ReadResponse(ctx context.Context, uuid CharUUID, hasCRC bool) ([]byte, error) {
	if p.cryptor == nil {
		return nil, pumperr.ErrKeyMissing
	}

	reader := frame.NewReader(
		func() ([]byte, error) { return p.facade.Read(ctx, uuid) },
		func() ([]byte, error) { return p.facade.Read(ctx, Characteristics.ExtendedRead) },
	)
	assembled, err := reader.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pumperr.ErrTransport, err)
	}

	plaintext, err := p.cryptor.Decrypt(assembled)
	if err != nil {
		p.LastDecryptFailed = true
		if errors.Is(err, pumperr.ErrDecryptFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", pumperr.ErrDecryptFailed, err)
	}
	p.LastDecryptFailed = false
	p.countersSynced = true

	if hasCRC {
		if stripped, ok := crc16Strip(plaintext); ok {
			return stripped, nil
		}
		return plaintext, nil
	}
	return plaintext, nil
}

func crc16Strip(plaintext []byte) ([]byte, bool) {
	if !crc16.Verify(plaintext) {
		return nil, false
	}
	body, err := crc16.Strip(plaintext)
	if err != nil {
		return nil, false
	}
	return body, true
}
