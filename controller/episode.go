package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/pumperr"
	"github.com/proregia/pumpcore/session"
)

// errKeyDead is the episode-internal signal that the installed cryptor's
// key is dead: either ble reported last_decrypt_failed directly, or the
// forced resync read failed to decrypt after exhausting the
// transient-retry window.
var errKeyDead = errors.New("controller: key dead")

const (
	statusRetryDelay    = 500 * time.Millisecond
	statusRetryAttempts = 3 // 3 attempts, 500ms between each

	disconnectSettleDelay = 300 * time.Millisecond
	renewalWaitBefore     = 1 * time.Second
	renewalWaitAfter      = 1 * time.Second

	criticalRetryMaxAttempts = 3
	criticalRetryBackoffUnit = 2000 * time.Millisecond
)

// episodeBlock is the user operation run once the episode has established
// an authenticated, counter-synced connection.
type episodeBlock func(ctx context.Context, pipeline *ble.Pipeline, status ble.SystemStatus) (interface{}, error)

// runEpisodeLocked runs the connect-on-demand episode body: connect,
// authenticate, load the cryptor, force a resync status read (with
// bounded transient retry), then run block. Disconnect always runs in a
// finally step. Callers must hold c.mu.
func (c *Controller) runEpisodeLocked(ctx context.Context, block episodeBlock) (interface{}, error) {
	c.emitConnectionState(StateConnecting, "connecting to pump")
	facade, err := c.dialer.Connect(ctx, c.macStr)
	if err != nil {
		c.emitConnectionState(StateError, "connect failed")
		return nil, fmt.Errorf("%w: connect: %v", pumperr.ErrTransport, err)
	}
	defer func() {
		c.emitConnectionState(StateDisconnected, "disconnected")
		_ = c.dialer.Disconnect(ctx, facade)
		c.clock.Sleep(disconnectSettleDelay)
	}()

	c.emitConnectionState(StateInitializing, "authenticating")
	if err := ble.Authenticate(ctx, facade, c.mac, c.clock.Sleep); err != nil {
		c.emitConnectionState(StateError, "authentication failed")
		return nil, fmt.Errorf("%w: %v", pumperr.ErrAuthFailure, err)
	}
	c.resetEventProcessor()

	cryptor, err := session.FromStore(c.store, time.Now(), c.log)
	if err != nil {
		c.emitConnectionState(StateAwaitingUserConfirmation, "key exchange required")
		return nil, err
	}

	pipeline := ble.NewPipeline(facade)
	pipeline.InstallCryptor(cryptor)

	status, err := c.forceStatusResync(ctx, pipeline)
	if err != nil {
		if errors.Is(err, errKeyDead) {
			return nil, errKeyDead
		}
		c.emitConnectionState(StateError, "status resync failed")
		return nil, err
	}

	c.updateCachedStatus(status)
	c.emitConnectionState(StateReady, "ready")
	return block(ctx, pipeline, status)
}

// forceStatusResync implements the episode's initial forced System Status
// read, with a bounded transient-retry window.
func (c *Controller) forceStatusResync(ctx context.Context, pipeline *ble.Pipeline) (ble.SystemStatus, error) {
	status, err := ble.ReadSystemStatus(ctx, pipeline)
	if err == nil {
		return status, nil
	}
	if pipeline.LastDecryptFailed {
		return ble.SystemStatus{}, errKeyDead
	}

	for attempt := 2; attempt <= statusRetryAttempts; attempt++ {
		c.clock.Sleep(statusRetryDelay)
		status, err = ble.ReadSystemStatus(ctx, pipeline)
		if err == nil {
			return status, nil
		}
		if pipeline.LastDecryptFailed {
			return ble.SystemStatus{}, errKeyDead
		}
	}
	return ble.SystemStatus{}, fmt.Errorf("%w: status resync exhausted retries", pumperr.ErrTransport)
}

func (c *Controller) updateCachedStatus(status ble.SystemStatus) {
	prev := c.cachedStatus
	c.cachedStatus = &status
	c.processStatusTransition(prev, status)
}

// runEpisodeWithRenewal wraps runEpisodeLocked with key-death handling: on
// errKeyDead, renew the shared key via the relay and retry the episode
// exactly once.
func (c *Controller) runEpisodeWithRenewal(ctx context.Context, block episodeBlock) (interface{}, error) {
	result, err := c.runEpisodeLocked(ctx, block)
	if err == nil || !errors.Is(err, errKeyDead) {
		return result, err
	}

	c.clock.Sleep(renewalWaitBefore)
	c.needsRenewal = true
	renewErr := c.renewKeyLocked(ctx)
	c.needsRenewal = false
	if renewErr != nil {
		c.emitUserMessage("key exchange failed, pairing required")
		return nil, renewErr
	}
	c.clock.Sleep(renewalWaitAfter)

	return c.runEpisodeLocked(ctx, block)
}

// runWithMutex acquires the controller mutex once for the whole
// renewal-aware episode: the mutex spans the key-death retry, not just
// the first attempt.
func (c *Controller) runWithMutex(ctx context.Context, block episodeBlock) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runEpisodeWithRenewal(ctx, block)
}

// runCritical wraps runWithMutex with a critical retry: up to 3 attempts
// with linear backoff (2000ms x attempt), for commands whose loss the
// pump never observed (bolus/TBR/time/cancel). Reads don't use this
// wrapper.
func (c *Controller) runCritical(ctx context.Context, block episodeBlock) (interface{}, error) {
	var lastErr error
	for attempt := 1; attempt <= criticalRetryMaxAttempts; attempt++ {
		result, err := c.runWithMutex(ctx, block)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransientRetryable(err) {
			return nil, err
		}
		lastErr = err
		if attempt < criticalRetryMaxAttempts {
			c.clock.Sleep(time.Duration(attempt) * criticalRetryBackoffUnit)
		}
	}
	return nil, fmt.Errorf("controller: critical retry exhausted %d attempts: %w", criticalRetryMaxAttempts, lastErr)
}

// isTransientRetryable reports whether err is a transient BLE/connect
// failure the critical-retry wrapper may swallow. DecryptFailed,
// auth failures, and NeedsKeyExchange signals are never retried here.
func isTransientRetryable(err error) bool {
	return errors.Is(err, pumperr.ErrTransport)
}
