package controller

import (
	"fmt"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/history"
)

// EventKind classifies a user-facing controller event.
type EventKind int

const (
	EventBatteryLow EventKind = iota
	EventBatteryEmpty
	EventReservoirLow
	EventReservoirEmpty
	EventCartridgeChanged
	EventModeChanged
	EventDeliveryStopped
	EventTBRStarted
	EventTBRCompleted
	EventBolusStarted
	EventHistory
)

// Event is published on Controller.EventStream.
type Event struct {
	Kind EventKind
	Text string

	OldMode, NewMode ble.DeliveryMode
	HistoryKind      history.EventKind
	HistoryEntry     history.Entry
}

// batteryLowThreshold and batteryEmptyThreshold are percent crossings.
const (
	batteryLowThreshold   = 20
	batteryEmptyThreshold = 5

	reservoirLowUnits       = 20.0
	reservoirEmptyUnits     = 5.0
	cartridgeChangedJumpU   = 50.0
)

// eventProcessorState tracks the last-known System Status fields the
// edge-triggered event processor compares against. It is reset on every
// fresh connect so the first poll of a new episode never emits spurious
// transitions.
type eventProcessorState struct {
	initialized bool
	battery     uint8
	insulin     float64
	mode        ble.DeliveryMode
}

// pollState tracks history high-water marks and the consecutive-failure
// count across polls. Unlike eventProcessorState it survives every
// reconnect: each 60s poll is its own episode, and resetting these on
// every connect would re-read and re-emit the entire history backlog on
// every poll, and would reset the failure count mid-streak.
type pollState struct {
	lastEventsCount int32
	lastAlertsCount int32
	consecutiveFail int
}

// resetEventProcessor clears last-known status-transition baseline state;
// called at the top of every fresh episode connect. It does not touch
// pollState.
func (c *Controller) resetEventProcessor() {
	c.procState = eventProcessorState{}
}

// processStatusTransition runs the edge-triggered event processor rules
// against a freshly read System Status. The first status after
// resetEventProcessor (the first of a fresh connect) only seeds a
// baseline (no events are emitted); the rules compare against that
// baseline, not against prev.
func (c *Controller) processStatusTransition(prev *ble.SystemStatus, status ble.SystemStatus) {
	st := &c.procState
	insulin := status.InsulinUnits()

	if !st.initialized {
		st.initialized = true
		st.battery = status.Battery
		st.insulin = insulin
		st.mode = status.DeliveryMode
		return
	}

	if crossedBelow(st.battery, status.Battery, batteryEmptyThreshold) {
		c.emitEvent(Event{Kind: EventBatteryEmpty, Text: "battery empty"})
	} else if crossedBelow(st.battery, status.Battery, batteryLowThreshold) {
		c.emitEvent(Event{Kind: EventBatteryLow, Text: "battery low"})
	}

	if insulin > st.insulin+cartridgeChangedJumpU {
		c.emitEvent(Event{Kind: EventCartridgeChanged, Text: "cartridge changed"})
	} else if crossedBelowF(st.insulin, insulin, reservoirEmptyUnits) {
		c.emitEvent(Event{Kind: EventReservoirEmpty, Text: "reservoir empty"})
	} else if crossedBelowF(st.insulin, insulin, reservoirLowUnits) {
		c.emitEvent(Event{Kind: EventReservoirLow, Text: "reservoir low"})
	}

	if status.DeliveryMode != st.mode {
		c.emitEvent(Event{
			Kind:    EventModeChanged,
			Text:    fmt.Sprintf("mode changed (%d -> %d)", st.mode, status.DeliveryMode),
			OldMode: st.mode,
			NewMode: status.DeliveryMode,
		})
		if status.DeliveryMode == ble.DeliveryStopped {
			c.emitEvent(Event{Kind: EventDeliveryStopped, Text: "delivery stopped"})
		}
		if status.DeliveryMode == ble.DeliveryTBR {
			c.emitEvent(Event{Kind: EventTBRStarted, Text: "TBR started"})
		}
		if st.mode == ble.DeliveryTBR && status.DeliveryMode == ble.DeliveryBasal {
			c.emitEvent(Event{Kind: EventTBRCompleted, Text: "TBR completed"})
		}
	}

	st.battery = status.Battery
	st.insulin = insulin
	st.mode = status.DeliveryMode
}

// crossedBelow reports whether a uint8 reading fell from at-or-above to
// strictly below threshold (a threshold crossing, counted once).
func crossedBelow(prev, cur uint8, threshold uint8) bool {
	return prev >= threshold && cur < threshold
}

func crossedBelowF(prev, cur float64, threshold float64) bool {
	return prev >= threshold && cur < threshold
}

// processBolusNotification emits BolusStarted on a transition into
// DELIVERING; terminal states (with amounts) are emitted by the issuing
// command itself, which can correlate against the requested amount.
func (c *Controller) processBolusNotification(prevDelivering, curDelivering bool) {
	if !prevDelivering && curDelivering {
		c.emitEvent(Event{Kind: EventBolusStarted, Text: "bolus started"})
	}
}

// processHistoryEntry maps a freshly observed history entry to a
// user-facing event via the history package's type-code table.
func (c *Controller) processHistoryEntry(e history.Entry) {
	kind, ok := history.EventKindFromCode(e.Type)
	if !ok {
		return
	}
	c.emitEvent(Event{Kind: EventHistory, Text: historyEventText(kind, e), HistoryKind: kind, HistoryEntry: e})
}

func historyEventText(kind history.EventKind, e history.Entry) string {
	switch kind {
	case history.EventFastBolusRunning:
		return fmt.Sprintf("fast bolus running (%.2f U)", history.FastBolusUnits(e))
	case history.EventFastBolusCompleted:
		return fmt.Sprintf("fast bolus completed (%.2f U)", history.FastBolusUnits(e))
	case history.EventFastBolusCancelled:
		return "fast bolus cancelled"
	case history.EventTBRRunning, history.EventTBRCompleted, history.EventTBRCancelled:
		percent, duration := history.TBRPercentAndDuration(e)
		return fmt.Sprintf("TBR %d%% for %d min", percent, duration)
	case history.EventAlertBattery:
		return "battery alert"
	case history.EventAlertReservoir:
		return "reservoir alert"
	case history.EventAlertOcclusion:
		return "occlusion alert"
	case history.EventAlertAutoStop:
		return "auto-stop alert"
	default:
		return "history event"
	}
}

func (c *Controller) emitEvent(e Event) {
	c.EventStream.Publish(e)
	c.log.Info("controller: event", "kind", e.Kind, "text", e.Text)
}
