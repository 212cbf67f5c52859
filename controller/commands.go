package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/proregia/pumpcore/ble"
	"github.com/proregia/pumpcore/glb"
	"github.com/proregia/pumpcore/history"
)

// Status returns the pump's current System Status. Reads don't use
// critical retry.
func (c *Controller) Status(ctx context.Context) (ble.SystemStatus, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, _ *ble.Pipeline, status ble.SystemStatus) (interface{}, error) {
		return status, nil
	})
	if err != nil {
		return ble.SystemStatus{}, err
	}
	return result.(ble.SystemStatus), nil
}

// StartBolus issues a bolus-start command through the critical-retry path.
func (c *Controller) StartBolus(ctx context.Context, totalCenti, durationMin, immediateCenti uint32, bolusType uint8) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return nil, ble.StartBolus(ctx, p, totalCenti, durationMin, immediateCenti, bolusType)
	})
	return err
}

// CancelBolus issues a bolus-cancel command through the critical-retry path.
func (c *Controller) CancelBolus(ctx context.Context, bolusType uint8) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return nil, ble.CancelBolus(ctx, p, bolusType)
	})
	return err
}

// BolusStatus reads the current bolus status (a read, not critical-retried).
func (c *Controller) BolusStatus(ctx context.Context) (ble.BolusStatus, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return ble.ReadBolusStatus(ctx, p)
	})
	if err != nil {
		return ble.BolusStatus{}, err
	}
	return result.(ble.BolusStatus), nil
}

// StartTBR issues a temporary basal rate change through the critical-retry
// path.
func (c *Controller) StartTBR(ctx context.Context, percent, durationMin int32) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return nil, ble.StartTBR(ctx, p, percent, durationMin)
	})
	return err
}

// CancelTBR cancels the active temporary basal rate through the
// critical-retry path.
func (c *Controller) CancelTBR(ctx context.Context) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return nil, ble.CancelTBR(ctx, p)
	})
	return err
}

// SyncClock writes the pump's date and then its time, both through the
// critical-retry path (loss is safe to retry since the pump never
// observed an incomplete write).
func (c *Controller) SyncClock(ctx context.Context, t time.Time) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		u := t.UTC()
		if err := ble.SyncDate(ctx, p, uint16(u.Year()), uint8(u.Month()), uint8(u.Day())); err != nil {
			return nil, err
		}
		return nil, ble.SyncTime(ctx, p, uint8(u.Hour()), uint8(u.Minute()), uint8(u.Second()))
	})
	return err
}

// ReadSetting reads a settings slot (a read, not critical-retried).
func (c *Controller) ReadSetting(ctx context.Context, index int32) (int32, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return ble.ReadSetting(ctx, p, index)
	})
	if err != nil {
		return 0, err
	}
	return result.(int32), nil
}

// WriteSetting writes a settings slot through the critical-retry path.
func (c *Controller) WriteSetting(ctx context.Context, index, value int32) error {
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return nil, ble.WriteSetting(ctx, p, index, value)
	})
	return err
}

// BasalProgram identifies one of the pump's two 24-hour basal rate
// tables: a selector setting index that must be written before its
// hourly slots are read or written, and the inclusive slot range itself.
type BasalProgram struct {
	Selector  int32
	SlotStart int32
	SlotEnd   int32
}

var (
	BasalProgramA = BasalProgram{
		Selector:  glb.SettingProgramASelector,
		SlotStart: glb.SettingProgramAStart,
		SlotEnd:   glb.SettingProgramAEnd,
	}
	BasalProgramB = BasalProgram{
		Selector:  glb.SettingProgramBSelector,
		SlotStart: glb.SettingProgramBStart,
		SlotEnd:   glb.SettingProgramBEnd,
	}
)

// ReadActiveProgram reports which basal program is currently active (a
// read, not critical-retried).
func (c *Controller) ReadActiveProgram(ctx context.Context) (int32, error) {
	return c.ReadSetting(ctx, glb.SettingActiveProgram)
}

// SetActiveProgram switches the pump's active basal program through the
// critical-retry path.
func (c *Controller) SetActiveProgram(ctx context.Context, program int32) error {
	return c.WriteSetting(ctx, glb.SettingActiveProgram, program)
}

// ReadBasalProgram selects program and reads its 24 hourly basal rates,
// in U/h (a read, not critical-retried).
func (c *Controller) ReadBasalProgram(ctx context.Context, program BasalProgram) ([]float64, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		if _, err := ble.ReadSetting(ctx, p, program.Selector); err != nil {
			return nil, fmt.Errorf("controller: select basal program: %w", err)
		}
		rates := make([]float64, 0, program.SlotEnd-program.SlotStart+1)
		for idx := program.SlotStart; idx <= program.SlotEnd; idx++ {
			raw, err := ble.ReadSetting(ctx, p, idx)
			if err != nil {
				return nil, fmt.Errorf("controller: read basal slot %d: %w", idx, err)
			}
			rates = append(rates, glb.BasalRateUnitsPerHour(raw))
		}
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

// WriteBasalProgram selects program and writes its 24 hourly basal rates
// from rates (U/h), through the critical-retry path. len(rates) must
// equal the number of slots in program.
func (c *Controller) WriteBasalProgram(ctx context.Context, program BasalProgram, rates []float64) error {
	wantLen := int(program.SlotEnd-program.SlotStart) + 1
	if len(rates) != wantLen {
		return fmt.Errorf("controller: basal program needs %d rates, got %d", wantLen, len(rates))
	}
	_, err := c.runCritical(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		if err := ble.WriteSetting(ctx, p, program.Selector, 1); err != nil {
			return nil, fmt.Errorf("controller: select basal program: %w", err)
		}
		for i, rate := range rates {
			idx := program.SlotStart + int32(i)
			if err := ble.WriteSetting(ctx, p, idx, glb.BasalRateRawCenti(rate)); err != nil {
				return nil, fmt.Errorf("controller: write basal slot %d: %w", idx, err)
			}
		}
		return nil, nil
	})
	return err
}

// FetchHistory reads every entry from a history stream whose index is
// greater than or equal to fromIndex (a read, not critical-retried).
// Each entry observed is also pushed through the event processor.
func (c *Controller) FetchHistory(ctx context.Context, stream ble.HistoryStream, fromIndex int32) ([]history.Entry, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		count, err := ble.HistoryCount(ctx, p, stream)
		if err != nil {
			return nil, err
		}
		entries := make([]history.Entry, 0, count)
		for i := fromIndex; i < count; i++ {
			if err := ble.HistoryIndex(ctx, p, stream, i); err != nil {
				return nil, fmt.Errorf("controller: history fetch at %d: %w", i, err)
			}
			raw, err := ble.HistoryValue(ctx, p, stream)
			if err != nil {
				return nil, fmt.Errorf("controller: history fetch at %d: %w", i, err)
			}
			entry, err := history.ParseEntry(raw)
			if err != nil {
				return nil, fmt.Errorf("controller: history parse at %d: %w", i, err)
			}
			entries = append(entries, entry)
			c.processHistoryEntry(entry)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]history.Entry), nil
}

// RenewKey forces an out-of-band key renewal via the relay, outside the
// normal key-death path (e.g. operator-triggered re-pairing).
func (c *Controller) RenewKey(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renewKeyLocked(ctx)
}

// WatchBolusNotifications holds one episode open for window, feeding every
// plaintext bolus notification through the event processor's
// DELIVERING-transition rule: notifications emit BolusStarted only on a
// transition into DELIVERING, since terminal bolus events are emitted by
// the command itself. It returns the last notification seen, or a zero
// value if none arrived.
func (c *Controller) WatchBolusNotifications(ctx context.Context, window time.Duration) (ble.BolusNotification, error) {
	result, err := c.runWithMutex(ctx, func(ctx context.Context, p *ble.Pipeline, _ ble.SystemStatus) (interface{}, error) {
		return c.watchBolusNotificationsLocked(ctx, p, window)
	})
	if err != nil {
		return ble.BolusNotification{}, err
	}
	return result.(ble.BolusNotification), nil
}

func (c *Controller) watchBolusNotificationsLocked(ctx context.Context, p *ble.Pipeline, window time.Duration) (ble.BolusNotification, error) {
	ch, err := p.Facade().EnableNotify(ctx, ble.Characteristics.BolusNotification)
	if err != nil {
		return ble.BolusNotification{}, fmt.Errorf("controller: enable bolus notifications: %w", err)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	var last, prev ble.BolusNotification
	var havePrev bool
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
			return last, nil
		case raw, ok := <-ch:
			if !ok {
				return last, nil
			}
			n, err := ble.ParseBolusNotification(raw)
			if err != nil {
				continue
			}
			prevDelivering := havePrev && prev.FastStatus == ble.BolusNotifyDelivering
			curDelivering := n.FastStatus == ble.BolusNotifyDelivering
			c.processBolusNotification(prevDelivering, curDelivering)
			prev, last, havePrev = n, n, true
		}
	}
}
