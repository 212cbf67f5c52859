// Package simpump is a software pump: it answers the ble.Facade contract
// with an in-process simulation good enough to drive cmd/pumpctl against
// without real hardware. It plays the same role a fake circuit-builder
// double would play in tests, generalized into a standalone demo harness
// rather than a _test.go file, since cmd/pumpctl needs it at run time.
package simpump

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/crc16"
	"github.com/proregia/pumpcore/frame"
	"github.com/proregia/pumpcore/glb"
	"github.com/proregia/pumpcore/history"
	"github.com/proregia/pumpcore/session"
)

// Pump is a stateful software stand-in for a YpsoPump: it holds its own
// session cryptor (sharing the key the client is paired with) and reacts
// to writes by updating delivery state, mirroring just enough of the
// real device's behavior for status, bolus, TBR and history commands to
// round-trip meaningfully.
type Pump struct {
	mu      sync.Mutex
	cryptor *session.Cryptor

	mode         ble.DeliveryMode
	insulinCenti uint32
	battery      uint8

	bolus      ble.BolusStatus
	tbrPercent int32
	tbrMinutes int32

	settings       map[int32]int32
	selectedSetting int32

	events    []history.Entry
	alerts    []history.Entry
	selIndex  map[ble.CharUUID]int32

	// activeFrames holds the in-flight read sequence: the first
	// Read(uuid) call builds the full frame set, subsequent
	// Read(ExtendedRead) calls drain it.
	activeFrames [][]byte

	writeBuf map[ble.CharUUID][][]byte

	notify chan []byte
}

// New builds a Pump that will decrypt and encrypt with sharedKey, starting
// at the given insulin reservoir level (centi-units) and battery percent.
func New(sharedKey []byte, insulinCenti uint32, battery uint8) (*Pump, error) {
	cryptor, err := session.NewCryptor(memStore{}, sharedKey, time.Now(), slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, fmt.Errorf("simpump: build pump-side cryptor: %w", err)
	}
	return &Pump{
		cryptor:      cryptor,
		mode:         ble.DeliveryBasal,
		insulinCenti: insulinCenti,
		battery:      battery,
		settings:     make(map[int32]int32),
		selIndex:     make(map[ble.CharUUID]int32),
		writeBuf:     make(map[ble.CharUUID][][]byte),
	}, nil
}

// memStore is a throwaway store.Store for the pump's own cryptor; the
// pump's counters never need to survive a process restart.
type memStore struct{}

func (memStore) GetBytes(string, string) ([]byte, bool, error)    { return nil, false, nil }
func (memStore) PutBytes(string, string, []byte) error            { return nil }
func (memStore) Remove(string, string) error                      { return nil }
func (memStore) GetUint64(string, string) (uint64, bool, error)    { return 0, false, nil }
func (memStore) PutUint64(string, string, uint64) error            { return nil }
func (memStore) GetUint32(string, string) (uint32, bool, error)    { return 0, false, nil }
func (memStore) PutUint32(string, string, uint32) error            { return nil }

// Facade returns a ble.Facade backed by this pump.
func (p *Pump) Facade() ble.Facade {
	return &facade{pump: p}
}

func (p *Pump) statusPlaintext() []byte {
	b := make([]byte, 6)
	b[0] = byte(p.mode)
	binary.LittleEndian.PutUint32(b[1:5], p.insulinCenti)
	b[5] = p.battery
	return b
}

func (p *Pump) encryptFrames(plaintext []byte) ([][]byte, error) {
	envelope, err := p.cryptor.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	return frame.Chunk(envelope)
}

func (p *Pump) recordHistory(stream *[]history.Entry, typeCode uint8, v1, v2, v3 uint16) {
	e := history.Entry{
		Timestamp: time.Now(),
		Type:      typeCode,
		Value1:    v1,
		Value2:    v2,
		Value3:    v3,
		Sequence:  uint32(len(*stream) + 1),
		Index:     uint16(len(*stream)),
	}
	*stream = append(*stream, e)
}

func historyWire(e history.Entry) []byte {
	b := make([]byte, history.EntryLen)
	binary.LittleEndian.PutUint32(b[0:4], uint32(e.Timestamp.Unix()-946684800))
	b[4] = e.Type
	binary.LittleEndian.PutUint16(b[5:7], e.Value1)
	binary.LittleEndian.PutUint16(b[7:9], e.Value2)
	binary.LittleEndian.PutUint16(b[9:11], e.Value3)
	binary.LittleEndian.PutUint32(b[11:15], e.Sequence)
	binary.LittleEndian.PutUint16(b[15:17], e.Index)
	return b
}

// beginRead builds the full frame set for an encrypted characteristic
// read and stashes it as the active sequence.
func (p *Pump) beginRead(plaintext []byte, hasCRC bool) ([]byte, error) {
	if hasCRC {
		plaintext = crc16.Append(plaintext)
	}
	frames, err := p.encryptFrames(plaintext)
	if err != nil {
		return nil, err
	}
	p.activeFrames = frames
	return p.popFrame(), nil
}

func (p *Pump) popFrame() []byte {
	if len(p.activeFrames) == 0 {
		return []byte{0x10}
	}
	f := p.activeFrames[0]
	p.activeFrames = p.activeFrames[1:]
	return f
}

func (p *Pump) read(ctx context.Context, uuid ble.CharUUID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch uuid {
	case ble.Characteristics.ExtendedRead:
		return p.popFrame(), nil
	case ble.Characteristics.SystemStatus:
		return p.beginRead(p.statusPlaintext(), true)
	case ble.Characteristics.BolusStatus:
		b := make([]byte, 13)
		b[0] = p.bolus.FastStatus
		binary.LittleEndian.PutUint32(b[1:5], p.bolus.FastSeq)
		binary.LittleEndian.PutUint32(b[5:9], p.bolus.FastInjectedCenti)
		binary.LittleEndian.PutUint32(b[9:13], p.bolus.FastTotalCenti)
		return p.beginRead(b, true)
	case ble.Characteristics.SettingValue:
		v := p.settings[p.selectedSetting]
		if v == 0 {
			v = glb.Unprogrammed
		}
		encoded := glb.Encode(v)
		return p.beginRead(encoded[:], false)
	case ble.Characteristics.EventsCount:
		encoded := glb.Encode(int32(len(p.events)))
		return p.beginRead(encoded[:], false)
	case ble.Characteristics.AlertsCount:
		encoded := glb.Encode(int32(len(p.alerts)))
		return p.beginRead(encoded[:], false)
	case ble.Characteristics.EventsValue:
		return p.beginRead(p.historyValueLocked(p.events, ble.Characteristics.EventsIndex), true)
	case ble.Characteristics.AlertsValue:
		return p.beginRead(p.historyValueLocked(p.alerts, ble.Characteristics.AlertsIndex), true)
	default:
		return nil, fmt.Errorf("simpump: read %s: not simulated", uuid)
	}
}

func (p *Pump) historyValueLocked(stream []history.Entry, indexUUID ble.CharUUID) []byte {
	idx := p.selIndex[indexUUID]
	if idx < 0 || int(idx) >= len(stream) {
		return make([]byte, history.EntryLen)
	}
	return historyWire(stream[idx])
}

func (p *Pump) write(ctx context.Context, uuid ble.CharUUID, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if uuid == ble.Characteristics.AuthPassword {
		return nil
	}

	buf := append(p.writeBuf[uuid], value)
	total := frame.TotalFrames(value[0])
	if len(buf) < total {
		p.writeBuf[uuid] = buf
		return nil
	}
	delete(p.writeBuf, uuid)

	envelope := frame.Assemble(buf)
	plaintext, err := p.cryptor.Decrypt(envelope)
	if err != nil {
		return fmt.Errorf("simpump: decrypt write to %s: %w", uuid, err)
	}
	p.dispatchWriteLocked(uuid, plaintext)
	return nil
}

func (p *Pump) dispatchWriteLocked(uuid ble.CharUUID, plaintext []byte) {
	switch uuid {
	case ble.Characteristics.BolusStartStop:
		p.handleBolusLocked(plaintext)
	case ble.Characteristics.TBRStartStop:
		p.handleTBRLocked(plaintext)
	case ble.Characteristics.SettingID:
		if v, ok := glb.FindIn(plaintext); ok {
			p.selectedSetting = v
		}
	case ble.Characteristics.SettingValue:
		if v, ok := glb.FindIn(plaintext); ok {
			p.settings[p.selectedSetting] = v
		}
	case ble.Characteristics.EventsIndex:
		if v, ok := glb.FindIn(plaintext); ok {
			p.selIndex[ble.Characteristics.EventsIndex] = v
		}
	case ble.Characteristics.AlertsIndex:
		if v, ok := glb.FindIn(plaintext); ok {
			p.selIndex[ble.Characteristics.AlertsIndex] = v
		}
	case ble.Characteristics.SystemDate, ble.Characteristics.SystemTime:
		// Accepted; simulated pump doesn't track wall-clock separately.
	}
}

func (p *Pump) handleBolusLocked(plaintext []byte) {
	if len(plaintext) < 13 {
		return
	}
	totalCenti := binary.LittleEndian.Uint32(plaintext[0:4])
	immediateCenti := binary.LittleEndian.Uint32(plaintext[8:12])
	if totalCenti == 0 {
		p.bolus.FastStatus = ble.BolusNotifyCancelled
		p.recordHistory(&p.events, 3, uint16(p.bolus.FastTotalCenti), 0, 0)
		p.notifyLocked()
		return
	}
	p.bolus.FastStatus = ble.BolusNotifyDelivering
	p.bolus.FastSeq++
	p.bolus.FastTotalCenti = totalCenti
	p.bolus.FastInjectedCenti = immediateCenti
	p.insulinCenti -= immediateCenti
	p.mode = ble.DeliveryFastBolus
	p.recordHistory(&p.events, 1, uint16(totalCenti), 0, 0)
	p.notifyLocked()
}

func (p *Pump) handleTBRLocked(plaintext []byte) {
	if len(plaintext) < 16 {
		return
	}
	percent, errP := glb.Decode(plaintext[0:8])
	minutes, errD := glb.Decode(plaintext[8:16])
	if errP != nil || errD != nil {
		return
	}
	if percent == 100 && minutes == 0 {
		if p.mode == ble.DeliveryTBR {
			p.recordHistory(&p.events, 10, uint16(p.tbrPercent), uint16(p.tbrMinutes), 0)
		}
		p.mode = ble.DeliveryBasal
		p.tbrPercent, p.tbrMinutes = 0, 0
		return
	}
	p.mode = ble.DeliveryTBR
	p.tbrPercent, p.tbrMinutes = percent, minutes
	p.recordHistory(&p.events, 9, uint16(percent), uint16(minutes), 0)
}

func (p *Pump) notifyLocked() {
	if p.notify == nil {
		return
	}
	n := ble.BolusNotification{FastStatus: p.bolus.FastStatus, FastSeq: p.bolus.FastSeq}
	b := make([]byte, 10)
	b[0] = n.FastStatus
	binary.LittleEndian.PutUint32(b[1:5], n.FastSeq)
	select {
	case p.notify <- b:
	default:
	}
}

func (p *Pump) enableNotify() <-chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify == nil {
		p.notify = make(chan []byte, 4)
	}
	return p.notify
}

// facade adapts a *Pump to ble.Facade.
type facade struct {
	pump *Pump
}

func (f *facade) Read(ctx context.Context, uuid ble.CharUUID) ([]byte, error) {
	return f.pump.read(ctx, uuid)
}

func (f *facade) WriteDefault(ctx context.Context, uuid ble.CharUUID, value []byte) error {
	return f.pump.write(ctx, uuid, value)
}

func (f *facade) WriteNoResponse(ctx context.Context, uuid ble.CharUUID, value []byte) error {
	return f.pump.write(ctx, uuid, value)
}

func (f *facade) EnableNotify(ctx context.Context, uuid ble.CharUUID) (<-chan []byte, error) {
	if uuid != ble.Characteristics.BolusNotification {
		return nil, fmt.Errorf("simpump: notify on %s: not simulated", uuid)
	}
	return f.pump.enableNotify(), nil
}
