// Package history parses the pump's 17-byte HistoryEntry wire format and
// maps its event-type codes onto user-facing event kinds. It exists as
// its own package to keep one job contained: turn typed wire bytes into
// a Go value for exactly one call site.
package history

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EntryLen is the fixed wire size of a HistoryEntry.
const EntryLen = 17

// pumpEpochOffset is the number of seconds between the Unix epoch and the
// pump's epoch (Jan 1 2000 00:00 UTC).
const pumpEpochOffset = 946684800

// Entry is the parsed form of a 17-byte history record.
type Entry struct {
	Timestamp time.Time
	Type      uint8
	Value1    uint16
	Value2    uint16
	Value3    uint16
	Sequence  uint32
	Index     uint16
}

// ParseEntry decodes a 17-byte HistoryEntry and shifts its pump-epoch
// timestamp to a standard UTC time.Time.
func ParseEntry(b []byte) (Entry, error) {
	if len(b) < EntryLen {
		return Entry{}, fmt.Errorf("history: entry too short (%d bytes, want %d)", len(b), EntryLen)
	}
	pumpSeconds := binary.LittleEndian.Uint32(b[0:4])
	return Entry{
		Timestamp: time.Unix(int64(pumpSeconds)+pumpEpochOffset, 0).UTC(),
		Type:      b[4],
		Value1:    binary.LittleEndian.Uint16(b[5:7]),
		Value2:    binary.LittleEndian.Uint16(b[7:9]),
		Value3:    binary.LittleEndian.Uint16(b[9:11]),
		Sequence:  binary.LittleEndian.Uint32(b[11:15]),
		Index:     binary.LittleEndian.Uint16(b[15:17]),
	}, nil
}

// EventKind is a user-facing classification of a history entry's type code.
type EventKind int

const (
	EventFastBolusRunning EventKind = iota
	EventFastBolusCompleted
	EventFastBolusCancelled
	EventTBRRunning
	EventTBRCompleted
	EventTBRCancelled
	EventAlertBattery
	EventAlertReservoir
	EventAlertOcclusion
	EventAlertAutoStop
)

// EventKindFromCode maps a raw history entry type code to a user-facing event
// kind. The bool result is false for unknown codes, which the event
// processor ignores.
func EventKindFromCode(code uint8) (EventKind, bool) {
	switch code {
	case 1:
		return EventFastBolusRunning, true
	case 2:
		return EventFastBolusCompleted, true
	case 3:
		return EventFastBolusCancelled, true
	case 9:
		return EventTBRRunning, true
	case 10:
		return EventTBRCompleted, true
	case 32:
		return EventTBRCancelled, true
	case 100:
		return EventAlertBattery, true
	case 101:
		return EventAlertReservoir, true
	case 104:
		return EventAlertOcclusion, true
	case 105, 106:
		return EventAlertAutoStop, true
	default:
		return 0, false
	}
}

// FastBolusUnits converts an Entry's Value1 field to delivered units for a
// fast-bolus event kind (value1/100 = units).
func FastBolusUnits(e Entry) float64 {
	return float64(e.Value1) / 100
}

// TBRPercentAndDuration extracts the TBR percent and duration-in-minutes
// carried in a TBR event's Value1/Value2 fields.
func TBRPercentAndDuration(e Entry) (percent, durationMin uint16) {
	return e.Value1, e.Value2
}
