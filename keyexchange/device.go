package keyexchange

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/proregia/pumpcore/pumpcrypto"
	"github.com/proregia/pumpcore/store"
)

// Persistence keys within store.NamespaceKeyExchange.
const (
	keyDeviceID   = "device_id"
	keyPrivHex    = "x25519_priv_pkcs8"
	keyPubHex     = "x25519_pub_raw"
	keyRelayURL   = "relay_url"
)

// Device is the persisted device identity used across the key exchange:
// an X25519 keypair plus a stable device_id.
type Device struct {
	ID      uuid.UUID
	Private [pumpcrypto.KeyLen]byte
	Public  [pumpcrypto.KeyLen]byte
}

// LoadOrGenerateDevice loads the persisted device identity, generating and
// persisting a fresh one (including a new google/uuid device_id) the
// first time it is called.
func LoadOrGenerateDevice(s store.Store) (*Device, error) {
	idBytes, ok, err := s.GetBytes(store.NamespaceKeyExchange, keyDeviceID)
	if err != nil {
		return nil, fmt.Errorf("keyexchange: load device_id: %w", err)
	}
	privHex, privOK, err := s.GetBytes(store.NamespaceKeyExchange, keyPrivHex)
	if err != nil {
		return nil, fmt.Errorf("keyexchange: load private key: %w", err)
	}
	pubHex, pubOK, err := s.GetBytes(store.NamespaceKeyExchange, keyPubHex)
	if err != nil {
		return nil, fmt.Errorf("keyexchange: load public key: %w", err)
	}

	if ok && privOK && pubOK {
		id, err := uuid.ParseBytes(idBytes)
		if err != nil {
			return nil, fmt.Errorf("keyexchange: parse device_id: %w", err)
		}
		priv, err := decodeHexKey(privHex)
		if err != nil {
			return nil, fmt.Errorf("keyexchange: decode private key: %w", err)
		}
		pub, err := decodeHexKey(pubHex)
		if err != nil {
			return nil, fmt.Errorf("keyexchange: decode public key: %w", err)
		}
		return &Device{ID: id, Private: priv, Public: pub}, nil
	}

	priv, pub, err := pumpcrypto.GenerateX25519Keypair()
	if err != nil {
		return nil, fmt.Errorf("keyexchange: generate device keypair: %w", err)
	}
	id := uuid.New()
	d := &Device{ID: id, Private: priv, Public: pub}
	if err := persistDevice(s, d); err != nil {
		return nil, err
	}
	return d, nil
}

func persistDevice(s store.Store, d *Device) error {
	if err := s.PutBytes(store.NamespaceKeyExchange, keyDeviceID, []byte(d.ID.String())); err != nil {
		return fmt.Errorf("keyexchange: persist device_id: %w", err)
	}
	if err := s.PutBytes(store.NamespaceKeyExchange, keyPrivHex, []byte(hex.EncodeToString(d.Private[:]))); err != nil {
		return fmt.Errorf("keyexchange: persist private key: %w", err)
	}
	if err := s.PutBytes(store.NamespaceKeyExchange, keyPubHex, []byte(hex.EncodeToString(d.Public[:]))); err != nil {
		return fmt.Errorf("keyexchange: persist public key: %w", err)
	}
	return nil
}

func decodeHexKey(h []byte) ([pumpcrypto.KeyLen]byte, error) {
	var out [pumpcrypto.KeyLen]byte
	decoded, err := hex.DecodeString(string(h))
	if err != nil {
		return out, err
	}
	if len(decoded) != pumpcrypto.KeyLen {
		return out, fmt.Errorf("keyexchange: key must be %d bytes, got %d", pumpcrypto.KeyLen, len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

// RelayURL returns the configured relay base URL, or false if it has
// never been set, in which case the caller should signal
// pumperr.ErrNeedsKeyExchange rather than attempt a renewal.
func RelayURL(s store.Store) (string, bool, error) {
	v, ok, err := s.GetBytes(store.NamespaceKeyExchange, keyRelayURL)
	if err != nil {
		return "", false, fmt.Errorf("keyexchange: load relay_url: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return string(v), true, nil
}

// SetRelayURL persists the relay base URL.
func SetRelayURL(s store.Store, url string) error {
	if err := s.PutBytes(store.NamespaceKeyExchange, keyRelayURL, []byte(url)); err != nil {
		return fmt.Errorf("keyexchange: persist relay_url: %w", err)
	}
	return nil
}
