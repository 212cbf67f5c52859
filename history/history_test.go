package history

import (
	"encoding/binary"
	"testing"
	"time"
)

func buildEntry(pumpSeconds uint32, typ uint8, v1, v2, v3 uint16, seq uint32, idx uint16) []byte {
	b := make([]byte, EntryLen)
	binary.LittleEndian.PutUint32(b[0:4], pumpSeconds)
	b[4] = typ
	binary.LittleEndian.PutUint16(b[5:7], v1)
	binary.LittleEndian.PutUint16(b[7:9], v2)
	binary.LittleEndian.PutUint16(b[9:11], v3)
	binary.LittleEndian.PutUint32(b[11:15], seq)
	binary.LittleEndian.PutUint16(b[15:17], idx)
	return b
}

func TestParseEntryAppliesPumpEpochShift(t *testing.T) {
	b := buildEntry(0, 1, 250, 0, 0, 7, 3)
	e, err := ParseEntry(b)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	want := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Fatalf("Timestamp = %v, want %v", e.Timestamp, want)
	}
	if e.Type != 1 || e.Value1 != 250 || e.Sequence != 7 || e.Index != 3 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestParseEntryRejectsShortInput(t *testing.T) {
	if _, err := ParseEntry(make([]byte, EntryLen-1)); err == nil {
		t.Fatalf("expected error for short entry")
	}
}

func TestEventKindFromCodeKnownAndUnknown(t *testing.T) {
	cases := []struct {
		code uint8
		want EventKind
		ok   bool
	}{
		{1, EventFastBolusRunning, true},
		{2, EventFastBolusCompleted, true},
		{3, EventFastBolusCancelled, true},
		{9, EventTBRRunning, true},
		{10, EventTBRCompleted, true},
		{32, EventTBRCancelled, true},
		{100, EventAlertBattery, true},
		{101, EventAlertReservoir, true},
		{104, EventAlertOcclusion, true},
		{105, EventAlertAutoStop, true},
		{106, EventAlertAutoStop, true},
		{255, 0, false},
	}
	for _, tc := range cases {
		got, ok := EventKindFromCode(tc.code)
		if ok != tc.ok {
			t.Fatalf("EventKindFromCode(%d) ok = %v, want %v", tc.code, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("EventKindFromCode(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestFastBolusUnits(t *testing.T) {
	e := Entry{Value1: 250}
	if got := FastBolusUnits(e); got != 2.5 {
		t.Fatalf("FastBolusUnits = %v, want 2.5", got)
	}
}

func TestTBRPercentAndDuration(t *testing.T) {
	e := Entry{Value1: 50, Value2: 30}
	percent, duration := TBRPercentAndDuration(e)
	if percent != 50 || duration != 30 {
		t.Fatalf("TBRPercentAndDuration = (%d, %d), want (50, 30)", percent, duration)
	}
}

func TestParseEntryTimestampShiftExampleOffset(t *testing.T) {
	// pump epoch + 1 day = Jan 2 2000
	b := buildEntry(86400, 9, 0, 0, 0, 0, 0)
	e, err := ParseEntry(b)
	if err != nil {
		t.Fatalf("ParseEntry: %v", err)
	}
	want := time.Date(2000, time.January, 2, 0, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Fatalf("Timestamp = %v, want %v", e.Timestamp, want)
	}
}
