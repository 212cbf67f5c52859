package ble

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/proregia/pumpcore/glb"
	"github.com/proregia/pumpcore/pumperr"
)

// ReadRaw reads an encrypted characteristic without attempting to parse
// the decrypted payload into a typed value. Used for security-status and
// version-style reads whose payload layout is not otherwise characterized.
func ReadRaw(ctx context.Context, p *Pipeline, uuid CharUUID, hasCRC bool) ([]byte, error) {
	plaintext, err := p.ReadResponse(ctx, uuid, hasCRC)
	if err != nil {
		return nil, fmt.Errorf("ble: read raw %s: %w", uuid, err)
	}
	return plaintext, nil
}

// DeliveryMode enumerates the pump's top-level delivery state.
type DeliveryMode uint8

const (
	DeliveryStopped        DeliveryMode = 0
	DeliveryBasal          DeliveryMode = 1
	DeliveryTBR            DeliveryMode = 2
	DeliveryFastBolus      DeliveryMode = 3
	DeliveryExtendedBolus  DeliveryMode = 4
	DeliveryBolusAndBasal  DeliveryMode = 5
	DeliveryPriming        DeliveryMode = 6
	DeliveryPaused         DeliveryMode = 7
)

// SystemStatus is the decrypted 6-byte System Status payload.
type SystemStatus struct {
	DeliveryMode DeliveryMode
	InsulinCenti uint32
	Battery      uint8
}

// InsulinUnits returns the remaining insulin in units (insulin_centi/100).
func (s SystemStatus) InsulinUnits() float64 {
	return float64(s.InsulinCenti) / 100
}

// ReadSystemStatus performs the CRC-checked System Status read. As a side
// effect this is the call that syncs the session's reboot counter on a
// freshly installed cryptor.
func ReadSystemStatus(ctx context.Context, p *Pipeline) (SystemStatus, error) {
	plaintext, err := p.ReadResponse(ctx, Characteristics.SystemStatus, true)
	if err != nil {
		return SystemStatus{}, fmt.Errorf("ble: read system status: %w", err)
	}
	if len(plaintext) < 6 {
		return SystemStatus{}, fmt.Errorf("%w: system status payload too short (%d bytes)", pumperr.ErrFraming, len(plaintext))
	}
	return SystemStatus{
		DeliveryMode: DeliveryMode(plaintext[0]),
		InsulinCenti: binary.LittleEndian.Uint32(plaintext[1:5]),
		Battery:      plaintext[5],
	}, nil
}

// Bolus types.
const (
	BolusTypeFast     uint8 = 1
	BolusTypeExtended uint8 = 2
)

// StartBolus issues the 13-byte encrypted bolus-start command, clamping
// totalCenti to [1, 2500] and immediateCenti to [0, totalCenti].
func StartBolus(ctx context.Context, p *Pipeline, totalCenti, durationMin, immediateCenti uint32, bolusType uint8) error {
	if totalCenti < 1 {
		totalCenti = 1
	}
	if totalCenti > 2500 {
		totalCenti = 2500
	}
	if immediateCenti > totalCenti {
		immediateCenti = totalCenti
	}

	payload := make([]byte, 13)
	binary.LittleEndian.PutUint32(payload[0:4], totalCenti)
	binary.LittleEndian.PutUint32(payload[4:8], durationMin)
	binary.LittleEndian.PutUint32(payload[8:12], immediateCenti)
	payload[12] = bolusType

	if err := p.SendCommand(ctx, Characteristics.BolusStartStop, payload, true); err != nil {
		return fmt.Errorf("ble: start bolus: %w", err)
	}
	return nil
}

// CancelBolus issues the 13-byte encrypted bolus-cancel command; bolusType
// selects which block (fast or extended) to cancel.
func CancelBolus(ctx context.Context, p *Pipeline, bolusType uint8) error {
	payload := make([]byte, 13)
	payload[12] = bolusType
	if err := p.SendCommand(ctx, Characteristics.BolusStartStop, payload, true); err != nil {
		return fmt.Errorf("ble: cancel bolus: %w", err)
	}
	return nil
}

// BolusStatus is the decrypted bolus-status payload (up to 42 bytes).
type BolusStatus struct {
	FastStatus        uint8
	FastSeq           uint32
	FastInjectedCenti uint32
	FastTotalCenti    uint32

	HasSlow                bool
	SlowStatus             uint8
	SlowSeq                uint32
	SlowInjectedCenti      uint32
	SlowTotalCenti         uint32
	FastPartInjectedCenti  uint32
	FastPartTotalCenti     uint32
	ActualDurationMin      uint32
	TotalDurationMin       uint32
}

// ReadBolusStatus reads and parses the bolus status characteristic.
func ReadBolusStatus(ctx context.Context, p *Pipeline) (BolusStatus, error) {
	plaintext, err := p.ReadResponse(ctx, Characteristics.BolusStatus, true)
	if err != nil {
		return BolusStatus{}, fmt.Errorf("ble: read bolus status: %w", err)
	}
	return ParseBolusStatus(plaintext)
}

// ParseBolusStatus decodes the fast (and optional slow) bolus block layout.
func ParseBolusStatus(b []byte) (BolusStatus, error) {
	if len(b) < 13 {
		return BolusStatus{}, fmt.Errorf("%w: bolus status payload too short (%d bytes)", pumperr.ErrFraming, len(b))
	}
	st := BolusStatus{
		FastStatus:        b[0],
		FastSeq:           binary.LittleEndian.Uint32(b[1:5]),
		FastInjectedCenti: binary.LittleEndian.Uint32(b[5:9]),
		FastTotalCenti:    binary.LittleEndian.Uint32(b[9:13]),
	}
	if len(b) < 14 {
		return st, nil
	}
	st.SlowStatus = b[13]
	if st.SlowStatus == 0 || len(b) < 42 {
		return st, nil
	}
	st.HasSlow = true
	st.SlowSeq = binary.LittleEndian.Uint32(b[14:18])
	st.SlowInjectedCenti = binary.LittleEndian.Uint32(b[18:22])
	st.SlowTotalCenti = binary.LittleEndian.Uint32(b[22:26])
	st.FastPartInjectedCenti = binary.LittleEndian.Uint32(b[26:30])
	st.FastPartTotalCenti = binary.LittleEndian.Uint32(b[30:34])
	st.ActualDurationMin = binary.LittleEndian.Uint32(b[34:38])
	st.TotalDurationMin = binary.LittleEndian.Uint32(b[38:42])
	return st, nil
}

// Bolus notification state values.
const (
	BolusNotifyIdle       uint8 = 0
	BolusNotifyDelivering uint8 = 1
	BolusNotifyCancelled  uint8 = 3
	BolusNotifyCompleted  uint8 = 4
)

// IsTerminalBolusState reports whether s is a terminal notification state
// (anything other than idle or delivering).
func IsTerminalBolusState(s uint8) bool {
	return s != BolusNotifyIdle && s != BolusNotifyDelivering
}

// BolusNotification is the plaintext (unencrypted) 10-byte notification
// payload delivered over the bolus-notification characteristic.
type BolusNotification struct {
	FastStatus uint8
	FastSeq    uint32
	SlowStatus uint8
	SlowSeq    uint32
}

// ParseBolusNotification decodes the plaintext bolus notification frame. A
// trailing 2-byte CRC is stripped if present and valid; it is never
// required since the notification channel is unencrypted.
func ParseBolusNotification(b []byte) (BolusNotification, error) {
	if body, ok := crc16Strip(b); ok {
		b = body
	}
	if len(b) < 10 {
		return BolusNotification{}, fmt.Errorf("%w: bolus notification payload too short (%d bytes)", pumperr.ErrFraming, len(b))
	}
	return BolusNotification{
		FastStatus: b[0],
		FastSeq:    binary.LittleEndian.Uint32(b[1:5]),
		SlowStatus: b[5],
		SlowSeq:    binary.LittleEndian.Uint32(b[6:10]),
	}, nil
}

// tbrPayload builds the 16-byte double-GLB TBR start/stop payload.
func tbrPayload(percent, durationMin int32) []byte {
	out := make([]byte, 16)
	p := glb.Encode(percent)
	d := glb.Encode(durationMin)
	copy(out[0:8], p[:])
	copy(out[8:16], d[:])
	return out
}

// StartTBR issues a temporary basal rate change: percent in [0, 200],
// durationMin a multiple of 15 up to 1440.
func StartTBR(ctx context.Context, p *Pipeline, percent, durationMin int32) error {
	payload := tbrPayload(percent, durationMin)
	if err := p.SendCommand(ctx, Characteristics.TBRStartStop, payload, false); err != nil {
		return fmt.Errorf("ble: start TBR: %w", err)
	}
	return nil
}

// CancelTBR is equivalent to StartTBR(100, 0).
func CancelTBR(ctx context.Context, p *Pipeline) error {
	if err := StartTBR(ctx, p, 100, 0); err != nil {
		return fmt.Errorf("ble: cancel TBR: %w", err)
	}
	return nil
}

// SyncDate writes the 4-byte system date. Must be followed by SyncTime.
func SyncDate(ctx context.Context, p *Pipeline, year uint16, month, day uint8) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], year)
	payload[2] = month
	payload[3] = day
	if err := p.SendCommand(ctx, Characteristics.SystemDate, payload, true); err != nil {
		return fmt.Errorf("ble: sync date: %w", err)
	}
	return nil
}

// SyncTime writes the 3-byte system time; must follow a successful
// SyncDate.
func SyncTime(ctx context.Context, p *Pipeline, hour, minute, second uint8) error {
	payload := []byte{hour, minute, second}
	if err := p.SendCommand(ctx, Characteristics.SystemTime, payload, true); err != nil {
		return fmt.Errorf("ble: sync time: %w", err)
	}
	return nil
}

// ReadSetting selects a settings index and reads its GLB-encoded value.
// The sentinel glb.Unprogrammed means the slot has never been written.
func ReadSetting(ctx context.Context, p *Pipeline, index int32) (int32, error) {
	idPayload := glb.Encode(index)
	if err := p.SendCommand(ctx, Characteristics.SettingID, idPayload[:], false); err != nil {
		return 0, fmt.Errorf("ble: select setting %d: %w", index, err)
	}
	plaintext, err := p.ReadResponse(ctx, Characteristics.SettingValue, false)
	if err != nil {
		return 0, fmt.Errorf("ble: read setting %d: %w", index, err)
	}
	v, ok := glb.FindIn(plaintext)
	if !ok {
		return 0, fmt.Errorf("ble: setting %d: %w", index, pumperr.ErrGlbCorrupt)
	}
	return v, nil
}

// WriteSetting writes a settings index followed by its GLB-encoded value,
// as two sequential encrypted multi-frame writes.
func WriteSetting(ctx context.Context, p *Pipeline, index, value int32) error {
	idPayload := glb.Encode(index)
	if err := p.SendCommand(ctx, Characteristics.SettingID, idPayload[:], false); err != nil {
		return fmt.Errorf("ble: select setting %d: %w", index, err)
	}
	valuePayload := glb.Encode(value)
	if err := p.SendCommand(ctx, Characteristics.SettingValue, valuePayload[:], false); err != nil {
		return fmt.Errorf("ble: write setting %d: %w", index, err)
	}
	return nil
}

// HistoryStream identifies one of the pump's three history ring buffers.
type HistoryStream struct {
	Count CharUUID
	Index CharUUID
	Value CharUUID
}

// History streams.
var (
	EventsHistory = HistoryStream{
		Count: Characteristics.EventsCount,
		Index: Characteristics.EventsIndex,
		Value: Characteristics.EventsValue,
	}
	AlertsHistory = HistoryStream{
		Count: Characteristics.AlertsCount,
		Index: Characteristics.AlertsIndex,
		Value: Characteristics.AlertsValue,
	}
	SystemHistory = HistoryStream{
		Count: Characteristics.SystemHistoryCount,
		Index: Characteristics.SystemHistoryIndex,
		Value: Characteristics.SystemHistoryValue,
	}
)

// HistoryCount reads the GLB-encoded entry count for a history stream.
func HistoryCount(ctx context.Context, p *Pipeline, stream HistoryStream) (int32, error) {
	plaintext, err := p.ReadResponse(ctx, stream.Count, false)
	if err != nil {
		return 0, fmt.Errorf("ble: read history count: %w", err)
	}
	v, ok := glb.FindIn(plaintext)
	if !ok {
		return 0, fmt.Errorf("ble: history count: %w", pumperr.ErrGlbCorrupt)
	}
	return v, nil
}

// HistoryIndex selects an entry in a history stream before HistoryValue
// reads it.
func HistoryIndex(ctx context.Context, p *Pipeline, stream HistoryStream, index int32) error {
	payload := glb.Encode(index)
	if err := p.SendCommand(ctx, stream.Index, payload[:], false); err != nil {
		return fmt.Errorf("ble: select history index %d: %w", index, err)
	}
	return nil
}

// HistoryValue reads the 17-byte raw HistoryEntry wire format at the
// currently selected index. Parsing into history.Entry is the caller's
// responsibility (see the history package).
func HistoryValue(ctx context.Context, p *Pipeline, stream HistoryStream) ([]byte, error) {
	plaintext, err := p.ReadResponse(ctx, stream.Value, true)
	if err != nil {
		return nil, fmt.Errorf("ble: read history value: %w", err)
	}
	return plaintext, nil
}
