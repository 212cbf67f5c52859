// Package keyexchange implements the relay-mediated X25519 key exchange:
// MAC/BT address derivation from the pump serial, the device keypair,
// and the HTTP and gRPC transport forms.
package keyexchange

import "fmt"

// macPrefix is common to every YpsoPump BLE MAC address.
const macPrefix = "EC:2A:F0:"

// btAddressPrefix is the fixed first three bytes of the BT address used in
// relay calls.
var btAddressPrefix = [3]byte{0xEC, 0x2A, 0xF0}

// normalizeSerial applies the pump's serial-wraparound rule (subtract
// 10,000,000 once the serial exceeds it), used identically by both
// DeriveMAC and DeriveBTAddress.
func normalizeSerial(serial int64) uint32 {
	n := serial
	if n > 10_000_000 {
		n -= 10_000_000
	}
	return uint32(n)
}

// DeriveMAC computes the display MAC address from a pump serial number:
// "EC:2A:F0:" followed by the three least-significant bytes of the
// normalized serial, big-endian, as hex pairs.
func DeriveMAC(serial int64) string {
	n := normalizeSerial(serial)
	return fmt.Sprintf("%s%02X:%02X:%02X", macPrefix, (n>>16)&0xFF, (n>>8)&0xFF, n&0xFF)
}

// DeriveBTAddress computes the 6 raw bytes used in relay calls: EC 2A F0
// followed by bytes 2,1,0 of the normalized serial serialized as a
// little-endian u32, equivalently the same three least-significant bytes
// as DeriveMAC, in the same big-endian display order.
func DeriveBTAddress(serial int64) [6]byte {
	n := normalizeSerial(serial)
	var out [6]byte
	copy(out[0:3], btAddressPrefix[:])
	out[3] = byte((n >> 16) & 0xFF)
	out[4] = byte((n >> 8) & 0xFF)
	out[5] = byte(n & 0xFF)
	return out
}
