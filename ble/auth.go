package ble

import (
	"context"
	"crypto/md5" //nolint:gosec // pump protocol mandates MD5, not a security choice made here
	"fmt"
	"time"
)

// AuthSalt is appended to the six raw MAC bytes before hashing.
var AuthSalt = [10]byte{0x4F, 0xC2, 0x45, 0x4D, 0x9B, 0x81, 0x59, 0xA4, 0x93, 0xBB}

// settleDelay is the pause the pump needs after an accepted authentication
// write before it will process further operations.
const settleDelay = 200 * time.Millisecond

// Password computes the MD5 authentication password for a 6-byte raw MAC
// address: MD5(mac ‖ AuthSalt).
func Password(mac [6]byte) [md5.Size]byte {
	buf := make([]byte, 0, 6+len(AuthSalt))
	buf = append(buf, mac[:]...)
	buf = append(buf, AuthSalt[:]...)
	return md5.Sum(buf)
}

// Authenticate writes the MD5 password to the auth characteristic and
// waits out the pump's settle delay. sleep is injected so tests can run
// without the real delay.
func Authenticate(ctx context.Context, facade Facade, mac [6]byte, sleep func(time.Duration)) error {
	password := Password(mac)
	if err := facade.WriteDefault(ctx, Characteristics.AuthPassword, password[:]); err != nil {
		return fmt.Errorf("ble: authenticate: %w", err)
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(settleDelay)
	return nil
}
