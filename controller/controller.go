// Package controller implements the connect-on-demand command controller:
// the per-command episode state machine, single-shot key renewal,
// critical retry, 60s polling, and the edge-triggered event processor,
// all serialized through one mutex.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/keyexchange"
	"github.com/proregia/pumpcore/store"
)

// ConnectionState enumerates the controller's connection lifecycle.
type ConnectionState int

const (
	StateNotPaired ConnectionState = iota
	StateDisconnected
	StateScanning
	StateConnecting
	StateInitializing
	StateAwaitingUserConfirmation
	StateReady
	StateRecovering
	StateError
)

// ConnectionEvent is published on the connection-state stream.
type ConnectionEvent struct {
	State   ConnectionState
	Message string
	Attempt int
	Cause   error
}

// UserMessage is a short human-readable status line for end users.
type UserMessage struct {
	Text string
}

// Dialer abstracts the BLE connect primitive so episode timing and
// sequencing are unit-testable without a real adapter.
type Dialer interface {
	Connect(ctx context.Context, mac string) (ble.Facade, error)
	Disconnect(ctx context.Context, facade ble.Facade) error
}

// Clock abstracts the inter-step delays the episode sequence requires,
// so tests can run them instantly.
type Clock interface {
	Sleep(d time.Duration)
}

// realClock sleeps for real; the production default.
type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Controller owns all pump interaction state behind a single mutex.
type Controller struct {
	mu sync.Mutex

	dialer    Dialer
	clock     Clock
	store     store.Store
	exchanger keyexchange.Exchanger
	mac       [6]byte
	macStr    string
	log       *slog.Logger

	needsRenewal bool
	cachedStatus *ble.SystemStatus
	procState    eventProcessorState
	pollState    pollState

	EventStream       *Broadcast[Event]
	UserMessageStream *Broadcast[UserMessage]
	ConnectionStream  *Broadcast[ConnectionEvent]
}

// Options configures a new Controller.
type Options struct {
	Dialer    Dialer
	Clock     Clock // defaults to realClock if nil
	Store     store.Store
	Exchanger keyexchange.Exchanger
	MAC       [6]byte
	MACString string
	Logger    *slog.Logger
}

// New builds a Controller ready to run command episodes.
func New(opts Options) *Controller {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		dialer:            opts.Dialer,
		clock:             clock,
		store:             opts.Store,
		exchanger:         opts.Exchanger,
		mac:               opts.MAC,
		macStr:            opts.MACString,
		log:               logger,
		EventStream:       NewBroadcast[Event](),
		UserMessageStream: NewBroadcast[UserMessage](),
		ConnectionStream:  NewBroadcast[ConnectionEvent](),
	}
}

// NeedsRenewal reports whether a renewal attempt is currently in flight.
func (c *Controller) NeedsRenewal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsRenewal
}

// CachedStatus returns the most recent System Status observed by any
// episode, or false if none has completed yet.
func (c *Controller) CachedStatus() (ble.SystemStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cachedStatus == nil {
		return ble.SystemStatus{}, false
	}
	return *c.cachedStatus, true
}

func (c *Controller) emitConnectionState(state ConnectionState, message string) {
	c.ConnectionStream.Publish(ConnectionEvent{State: state, Message: message})
	c.log.Debug("controller: connection state", "state", state, "message", message)
}

func (c *Controller) emitUserMessage(text string) {
	c.UserMessageStream.Publish(UserMessage{Text: text})
}
