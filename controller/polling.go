package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/history"
)

// pollInterval is the Ready-state status/history poll cadence.
const pollInterval = 60 * time.Second

// pollFailureNotifyThreshold is the consecutive-failure count that
// surfaces a user-visible notification without forcing a reconnect.
const pollFailureNotifyThreshold = 3

// StartPolling runs the 60s status/history poll in a background goroutine
// until ctx is cancelled. Call it once after the controller is paired;
// each tick runs an ordinary episode, so it competes for the mutex
// exactly like any other command.
func (c *Controller) StartPolling(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollTick(ctx)
			}
		}
	}()
}

func (c *Controller) pollTick(ctx context.Context) {
	err := c.pollOnce(ctx)

	c.mu.Lock()
	if err != nil {
		c.pollState.consecutiveFail++
		fail := c.pollState.consecutiveFail
		c.mu.Unlock()
		c.log.Warn("controller: poll failed", "consecutive_failures", fail, "error", err)
		if fail >= pollFailureNotifyThreshold {
			c.emitUserMessage("pump is not responding")
		}
		return
	}
	c.pollState.consecutiveFail = 0
	c.mu.Unlock()
}

// pollOnce runs a single poll episode: read System Status (which drives
// the edge-triggered event processor), then fetch any new Events/Alerts
// history deltas.
func (c *Controller) pollOnce(ctx context.Context) error {
	_, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, status ble.SystemStatus) (interface{}, error) {
		if err := c.pollHistoryDeltaLocked(ctx, p, ble.EventsHistory, &c.pollState.lastEventsCount); err != nil {
			return nil, fmt.Errorf("controller: poll events history: %w", err)
		}
		if err := c.pollHistoryDeltaLocked(ctx, p, ble.AlertsHistory, &c.pollState.lastAlertsCount); err != nil {
			return nil, fmt.Errorf("controller: poll alerts history: %w", err)
		}
		return nil, nil
	})
	return err
}

// pollHistoryDeltaLocked reads stream's count and, if it grew since
// *last, fetches and processes the new entries. Callers must hold c.mu
// (it runs inside a runWithMutex block).
func (c *Controller) pollHistoryDeltaLocked(ctx context.Context, p *ble.Pipeline, stream ble.HistoryStream, last *int32) error {
	count, err := ble.HistoryCount(ctx, p, stream)
	if err != nil {
		return err
	}
	for i := *last; i < count; i++ {
		if err := ble.HistoryIndex(ctx, p, stream, i); err != nil {
			return err
		}
		raw, err := ble.HistoryValue(ctx, p, stream)
		if err != nil {
			return err
		}
		entry, err := history.ParseEntry(raw)
		if err != nil {
			return err
		}
		c.processHistoryEntry(entry)
	}
	*last = count
	return nil
}
