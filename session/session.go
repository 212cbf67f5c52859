// Package session implements the counter-augmented session cryptor that
// sits between the BLE framing layer and the XChaCha20-Poly1305 primitive:
// envelope construction, counter bookkeeping, reboot-counter resync, and
// persistence.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/proregia/pumpcore/pumpcrypto"
	"github.com/proregia/pumpcore/pumperr"
	"github.com/proregia/pumpcore/store"
)

// Minimum envelope size: 16-byte tag + 24-byte nonce, zero-length plaintext.
const minEnvelopeLen = pumpcrypto.Overhead + pumpcrypto.NonceSize

// counterTailLen is the size of the reboot_counter‖write_counter trailer
// appended to every plaintext before AEAD sealing.
const counterTailLen = 4 + 8

// Persistence keys within store.NamespaceCrypto.
const (
	keySharedKey          = "shared_key"
	keySharedKeyExpiresAt = "shared_key_expires_at"
	keyReadCounter        = "read_counter"
	keyWriteCounter       = "write_counter"
	keyRebootCounter      = "reboot_counter"
)

// defaultKeyHorizon is the expiry horizon set on a freshly created session;
// the cryptor itself never enforces it (a failed decrypt is the
// authoritative signal a key is dead), it exists only so FromStore has
// something to compare against a caller-supplied "now".
const defaultKeyHorizon = 3650 * 24 * time.Hour

// State is the persisted tuple behind a Cryptor: shared key plus the three
// counters.
type State struct {
	SharedKey       []byte
	SharedKeyExpiry time.Time
	ReadCounter     uint64
	WriteCounter    uint64
	RebootCounter   uint32
}

// Cryptor is the session-level encrypt/decrypt engine. It depends only on
// the store.Store interface, never a concrete backend.
type Cryptor struct {
	mu    sync.Mutex
	state State
	store store.Store
	log   *slog.Logger
}

// NewCryptor creates a fresh Cryptor around a newly established shared key
// and persists its initial state immediately.
func NewCryptor(s store.Store, sharedKey []byte, now time.Time, logger *slog.Logger) (*Cryptor, error) {
	if len(sharedKey) != pumpcrypto.KeySize {
		return nil, fmt.Errorf("session: shared key must be %d bytes, got %d", pumpcrypto.KeySize, len(sharedKey))
	}
	if logger == nil {
		logger = slog.Default()
	}
	key := make([]byte, len(sharedKey))
	copy(key, sharedKey)
	c := &Cryptor{
		state: State{
			SharedKey:       key,
			SharedKeyExpiry: now.Add(defaultKeyHorizon),
		},
		store: s,
		log:   logger,
	}
	if err := c.persistLocked(); err != nil {
		return nil, err
	}
	logger.Info("session: new cryptor installed", "expires_at", c.state.SharedKeyExpiry)
	return c, nil
}

// Forget removes a persisted session's key material and counters from
// the store, so a later FromStore reports pumperr.ErrKeyMissing instead
// of loading a key known to be dead.
func Forget(s store.Store) error {
	for _, key := range []string{keySharedKey, keySharedKeyExpiresAt, keyReadCounter, keyWriteCounter, keyRebootCounter} {
		if err := s.Remove(store.NamespaceCrypto, key); err != nil {
			return fmt.Errorf("session: forget %s: %w", key, err)
		}
	}
	return nil
}

// FromStore loads a Cryptor from persistence. It returns
// pumperr.ErrKeyMissing if no key is stored or the expiry has passed as
// of now.
func FromStore(s store.Store, now time.Time, logger *slog.Logger) (*Cryptor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sharedKey, ok, err := s.GetBytes(store.NamespaceCrypto, keySharedKey)
	if err != nil {
		return nil, fmt.Errorf("session: load shared key: %w", err)
	}
	if !ok {
		return nil, pumperr.ErrKeyMissing
	}
	expiresMillis, ok, err := s.GetUint64(store.NamespaceCrypto, keySharedKeyExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("session: load shared key expiry: %w", err)
	}
	if !ok {
		return nil, pumperr.ErrKeyMissing
	}
	expiresAt := time.UnixMilli(int64(expiresMillis)).UTC()
	if now.After(expiresAt) {
		return nil, pumperr.ErrKeyMissing
	}

	readCounter, _, err := s.GetUint64(store.NamespaceCrypto, keyReadCounter)
	if err != nil {
		return nil, fmt.Errorf("session: load read counter: %w", err)
	}
	writeCounter, _, err := s.GetUint64(store.NamespaceCrypto, keyWriteCounter)
	if err != nil {
		return nil, fmt.Errorf("session: load write counter: %w", err)
	}
	rebootCounter, _, err := s.GetUint32(store.NamespaceCrypto, keyRebootCounter)
	if err != nil {
		return nil, fmt.Errorf("session: load reboot counter: %w", err)
	}

	return &Cryptor{
		state: State{
			SharedKey:       sharedKey,
			SharedKeyExpiry: expiresAt,
			ReadCounter:     readCounter,
			WriteCounter:    writeCounter,
			RebootCounter:   rebootCounter,
		},
		store: s,
		log:   logger,
	}, nil
}

// State returns a copy of the cryptor's current counter/key state.
func (c *Cryptor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := make([]byte, len(c.state.SharedKey))
	copy(key, c.state.SharedKey)
	st := c.state
	st.SharedKey = key
	return st
}

// Encrypt builds an encrypted envelope from payload: generate a nonce,
// append the counter tail, increment and persist the write counter
// before sealing, then return ciphertext‖tag‖nonce.
func (c *Cryptor) Encrypt(payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := make([]byte, pumpcrypto.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("session: generate nonce: %w", err)
	}

	nextWrite := c.state.WriteCounter + 1

	plaintext := make([]byte, 0, len(payload)+counterTailLen)
	plaintext = append(plaintext, payload...)
	tail := make([]byte, counterTailLen)
	binary.LittleEndian.PutUint32(tail[0:4], c.state.RebootCounter)
	binary.LittleEndian.PutUint64(tail[4:12], nextWrite)
	plaintext = append(plaintext, tail...)

	c.state.WriteCounter = nextWrite
	if err := c.persistLocked(); err != nil {
		return nil, fmt.Errorf("session: persist write counter: %w", err)
	}

	aead, err := pumpcrypto.XChaCha20Poly1305Encrypt(c.state.SharedKey, nonce, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}

	envelope := make([]byte, 0, len(aead)+len(nonce))
	envelope = append(envelope, aead...)
	envelope = append(envelope, nonce...)
	c.log.Debug("session: encrypted envelope", "write_counter", nextWrite, "reboot_counter", c.state.RebootCounter)
	return envelope, nil
}

// Decrypt opens an encrypted envelope, resyncing the reboot counter (and
// resetting the write counter) if the pump reports a different reboot
// epoch. Returns pumperr.ErrDecryptFailed on any tag mismatch or
// malformed envelope.
func (c *Cryptor) Decrypt(envelope []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(envelope) < minEnvelopeLen {
		return nil, pumperr.ErrDecryptFailed
	}
	nonce := envelope[len(envelope)-pumpcrypto.NonceSize:]
	aead := envelope[:len(envelope)-pumpcrypto.NonceSize]

	plaintext, err := pumpcrypto.XChaCha20Poly1305Decrypt(c.state.SharedKey, nonce, nil, aead)
	if err != nil {
		c.log.Debug("session: decrypt failed", "error", err)
		return nil, pumperr.ErrDecryptFailed
	}
	if len(plaintext) < counterTailLen {
		return nil, pumperr.ErrDecryptFailed
	}

	tail := plaintext[len(plaintext)-counterTailLen:]
	peerReboot := binary.LittleEndian.Uint32(tail[0:4])
	peerNumeric := binary.LittleEndian.Uint64(tail[4:12])

	if peerReboot != c.state.RebootCounter {
		c.log.Info("session: reboot counter changed, resetting write counter", "old", c.state.RebootCounter, "new", peerReboot)
		c.state.RebootCounter = peerReboot
		c.state.WriteCounter = 0
	}
	c.state.ReadCounter = peerNumeric

	if err := c.persistLocked(); err != nil {
		return nil, fmt.Errorf("session: persist after decrypt: %w", err)
	}

	return plaintext[:len(plaintext)-counterTailLen], nil
}

func (c *Cryptor) persistLocked() error {
	if err := c.store.PutBytes(store.NamespaceCrypto, keySharedKey, c.state.SharedKey); err != nil {
		return err
	}
	if err := c.store.PutUint64(store.NamespaceCrypto, keySharedKeyExpiresAt, uint64(c.state.SharedKeyExpiry.UnixMilli())); err != nil {
		return err
	}
	if err := c.store.PutUint64(store.NamespaceCrypto, keyReadCounter, c.state.ReadCounter); err != nil {
		return err
	}
	if err := c.store.PutUint64(store.NamespaceCrypto, keyWriteCounter, c.state.WriteCounter); err != nil {
		return err
	}
	if err := c.store.PutUint32(store.NamespaceCrypto, keyRebootCounter, c.state.RebootCounter); err != nil {
		return err
	}
	return nil
}
