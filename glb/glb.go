// Package glb implements the pump's other self-check codec: an 8-byte value
// carrying a 32-bit integer alongside its bitwise complement, so that a
// lone bit error in transit is detected without a separate checksum.
package glb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Len is the size in bytes of an encoded GLB value.
const Len = 8

// ErrCorrupt is returned when a buffer fails the self-check.
var ErrCorrupt = fmt.Errorf("glb: value and complement do not match")

// Encode returns v_LE(4) ‖ (~v)_LE(4).
func Encode(v int32) [Len]byte {
	var out [Len]byte
	binary.LittleEndian.PutUint32(out[0:4], uint32(v))
	binary.LittleEndian.PutUint32(out[4:8], ^uint32(v))
	return out
}

// Decode validates and extracts the signed value from an 8-byte GLB buffer.
func Decode(b []byte) (int32, error) {
	if len(b) < Len {
		return 0, ErrCorrupt
	}
	first := binary.LittleEndian.Uint32(b[0:4])
	second := binary.LittleEndian.Uint32(b[4:8])
	if first^second != 0xFFFFFFFF {
		return 0, ErrCorrupt
	}
	return int32(first), nil
}

// FindIn scans every 8-byte window of b and returns the first valid decode.
func FindIn(b []byte) (int32, bool) {
	if len(b) < Len {
		return 0, false
	}
	for i := 0; i+Len <= len(b); i++ {
		if v, err := Decode(b[i : i+Len]); err == nil {
			return v, true
		}
	}
	return 0, false
}

// Unprogrammed is the sentinel value (0xFFFFFFFF as i32) the pump uses to
// mark a settings slot that has never been written.
const Unprogrammed int32 = -1

// Settings indices.
const (
	SettingActiveProgram = 1

	SettingProgramAStart    = 14
	SettingProgramAEnd      = 37
	SettingProgramASelector = 3

	SettingProgramBStart    = 38
	SettingProgramBEnd      = 61
	SettingProgramBSelector = 10
)

// BasalRateUnitsPerHour converts a raw centi-units-per-hour settings value
// to U/h, normalizing the unprogrammed sentinel to 0.
func BasalRateUnitsPerHour(raw int32) float64 {
	if raw == Unprogrammed {
		return 0
	}
	return float64(raw) / 100
}

// BasalRateRawCenti is the inverse of BasalRateUnitsPerHour: it rounds a
// U/h rate to the nearest raw centi-units-per-hour settings value.
func BasalRateRawCenti(unitsPerHour float64) int32 {
	return int32(math.Round(unitsPerHour * 100))
}
