// Package ble implements the BLE protocol layer: the abstract facade
// contract, plain-text authentication, the encrypted write/read pipelines,
// and the per-characteristic command/response codecs that sit on top of
// them.
package ble

import "context"

// CharUUID identifies one GATT characteristic by its full UUID string.
type CharUUID string

// uuidPrefix is shared by every pump characteristic; only the suffix
// varies.
const uuidPrefix = "669a0c20-0008-969e-e211-"

func charUUID(suffix string) CharUUID {
	return CharUUID(uuidPrefix + suffix)
}

// Characteristics is the fixed UUID table for a YpsoPump.
var Characteristics = struct {
	AuthPassword        CharUUID
	MasterVersion        CharUUID
	SystemDate          CharUUID
	SystemTime          CharUUID
	BolusStartStop      CharUUID
	BolusStatus         CharUUID
	TBRStartStop        CharUUID
	SystemStatus        CharUUID
	BolusNotification   CharUUID
	SecurityStatus      CharUUID
	SettingID           CharUUID
	SettingValue        CharUUID
	ExtendedRead        CharUUID
	PumpKeyRead         CharUUID
	PumpKeyWrite        CharUUID
	EventsCount         CharUUID
	EventsIndex         CharUUID
	EventsValue         CharUUID
	AlertsCount         CharUUID
	AlertsIndex         CharUUID
	AlertsValue         CharUUID
	SystemHistoryCount  CharUUID
	SystemHistoryIndex  CharUUID
	SystemHistoryValue  CharUUID
}{
	AuthPassword:       charUUID("fcbeb2147bc5"),
	MasterVersion:      charUUID("fcbeb0147bc5"),
	SystemDate:         charUUID("fcbedc3b7bc5"),
	SystemTime:         charUUID("fcbedd3b7bc5"),
	BolusStartStop:     charUUID("fcbee18b7bc5"),
	BolusStatus:        charUUID("fcbee28b7bc5"),
	TBRStartStop:       charUUID("fcbee38b7bc5"),
	SystemStatus:       charUUID("fcbee48b7bc5"),
	BolusNotification:  charUUID("fcbee58b7bc5"),
	SecurityStatus:     charUUID("fcbee08b7bc5"),
	SettingID:          charUUID("fcbeb3147bc5"),
	SettingValue:       charUUID("fcbeb4147bc5"),
	ExtendedRead:       charUUID("fcff000000ff"),
	PumpKeyRead:        charUUID("fcff0000000a"),
	PumpKeyWrite:       charUUID("fcff0000000b"),
	EventsCount:        charUUID("fcbecb3b7bc5"),
	EventsIndex:        charUUID("fcbecc3b7bc5"),
	EventsValue:        charUUID("fcbecd3b7bc5"),
	AlertsCount:        charUUID("fcbec83b7bc5"),
	AlertsIndex:        charUUID("fcbec93b7bc5"),
	AlertsValue:        charUUID("fcbeca3b7bc5"),
	SystemHistoryCount: charUUID("fcbece3b7bc5"),
	SystemHistoryIndex: charUUID("fcbecf3b7bc5"),
	SystemHistoryValue: charUUID("fcbed03b7bc5"),
}

// Facade is the abstract BLE primitive set the protocol layer is built on.
// The OS-level BLE stack (scanner, GATT client, bonding) implementing it
// stays an external collaborator; everything in this package is written
// against the interface.
type Facade interface {
	Read(ctx context.Context, uuid CharUUID) ([]byte, error)
	WriteDefault(ctx context.Context, uuid CharUUID, value []byte) error
	WriteNoResponse(ctx context.Context, uuid CharUUID, value []byte) error
	EnableNotify(ctx context.Context, uuid CharUUID) (<-chan []byte, error)
}
