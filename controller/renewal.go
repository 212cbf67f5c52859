package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/frame"
	"github.com/proregia/pumpcore/keyexchange"
	"github.com/proregia/pumpcore/pumpcrypto"
	"github.com/proregia/pumpcore/pumperr"
	"github.com/proregia/pumpcore/session"
)

const (
	keyReadRetryAttempts = 5
	keyReadRetryDelay    = 1 * time.Second
	keyExchangeSettle    = 500 * time.Millisecond
	keyReadLen           = 64
)

// renewKeyLocked runs the relay-mediated key exchange sequence: connect,
// authenticate, read the pump's challenge and public key, call the relay,
// re-authenticate, write the relay-encrypted key material back to the
// pump, derive the shared key, and validate it with a status read.
// Callers must hold c.mu.
func (c *Controller) renewKeyLocked(ctx context.Context) error {
	relayURL, ok, err := keyexchange.RelayURL(c.store)
	if err != nil {
		return fmt.Errorf("controller: load relay URL: %w", err)
	}
	if !ok {
		return pumperr.ErrNeedsKeyExchange
	}
	_ = relayURL // the configured Exchanger already carries its transport target

	device, err := keyexchange.LoadOrGenerateDevice(c.store)
	if err != nil {
		return fmt.Errorf("controller: load device identity: %w", err)
	}

	facade, err := c.dialer.Connect(ctx, c.macStr)
	if err != nil {
		return fmt.Errorf("%w: renewal connect: %v", pumperr.ErrTransport, err)
	}
	defer func() {
		_ = c.dialer.Disconnect(ctx, facade)
		c.clock.Sleep(disconnectSettleDelay)
	}()

	if err := ble.Authenticate(ctx, facade, c.mac, c.clock.Sleep); err != nil {
		return fmt.Errorf("%w: renewal authenticate: %v", pumperr.ErrAuthFailure, err)
	}
	c.clock.Sleep(keyExchangeSettle)

	var keyBlob []byte
	for attempt := 1; attempt <= keyReadRetryAttempts; attempt++ {
		keyBlob, err = facade.Read(ctx, ble.Characteristics.PumpKeyRead)
		if err == nil && len(keyBlob) >= keyReadLen {
			break
		}
		if attempt < keyReadRetryAttempts {
			c.clock.Sleep(keyReadRetryDelay)
		}
	}
	if len(keyBlob) < keyReadLen {
		return fmt.Errorf("%w: could not read pump key material", pumperr.ErrTransport)
	}
	var challenge, pumpPublicKey [32]byte
	copy(challenge[:], keyBlob[0:32])
	copy(pumpPublicKey[:], keyBlob[32:64])

	resp, err := c.exchanger.Exchange(ctx, keyexchange.ExchangeRequest{
		Challenge:     challenge,
		PumpPublicKey: pumpPublicKey,
		AppPublicKey:  device.Public,
		BTAddress:     deriveBTAddressFromMAC(c.mac),
		DeviceID:      device.ID.String(),
	})
	if err != nil {
		return err
	}

	if err := ble.Authenticate(ctx, facade, c.mac, c.clock.Sleep); err != nil {
		return fmt.Errorf("%w: post-relay re-authenticate: %v", pumperr.ErrAuthFailure, err)
	}
	c.clock.Sleep(keyExchangeSettle)

	keyFrames, err := frame.Chunk(resp.EncryptedBytes)
	if err != nil {
		return fmt.Errorf("ble: chunk relay-encrypted key: %w", err)
	}
	for i, f := range keyFrames {
		if err := facade.WriteDefault(ctx, ble.Characteristics.PumpKeyWrite, f); err != nil {
			return fmt.Errorf("%w: write key frame %d/%d: %v", pumperr.ErrTransport, i+1, len(keyFrames), err)
		}
	}

	sharedKey, err := pumpcrypto.DeriveSharedKey(device.Private[:], pumpPublicKey[:])
	if err != nil {
		return fmt.Errorf("controller: derive shared key: %w", err)
	}
	cryptor, err := session.NewCryptor(c.store, sharedKey, time.Now(), c.log)
	if err != nil {
		return fmt.Errorf("controller: install renewed cryptor: %w", err)
	}

	pipeline := ble.NewPipeline(facade)
	pipeline.InstallCryptor(cryptor)
	if _, err := ble.ReadSystemStatus(ctx, pipeline); err != nil {
		if forgetErr := session.Forget(c.store); forgetErr != nil {
			c.log.Warn("controller: failed to discard invalid renewed key", "error", forgetErr)
		}
		return fmt.Errorf("%w: post-renewal validation: %v", pumperr.ErrKeyValidationFailed, err)
	}

	c.log.Info("controller: key renewal complete")
	return nil
}

// deriveBTAddressFromMAC rebuilds the relay's raw BT-address bytes from
// the pump's MAC: both derive from the same serial-number prefix bytes,
// so the MAC already carries what the relay call needs.
func deriveBTAddressFromMAC(mac [6]byte) [6]byte {
	return mac
}
