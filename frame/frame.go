// Package frame implements the ProBluetooth framing codec: splitting a
// payload into 1-byte-header chunks that fit the pump's tiny (20-byte) MTU,
// and reassembling them on the other side.
package frame

import "fmt"

// MaxPerFrame is the largest payload carried by a single frame.
const MaxPerFrame = 19

// MaxFrames is the largest total-frame-count the 4-bit low nibble can carry.
const MaxFrames = 15

// MaxPayload is the largest payload chunk() can split without overflowing
// the 4-bit frame-count nibble.
const MaxPayload = MaxFrames * MaxPerFrame

// emptySentinel is the single frame emitted for a zero-length payload: a
// header byte whose low nibble is 0, read back as "1 total frame".
const emptySentinel = 0x10

// Header packs a 0-based frame index (stored 1-based in the high nibble)
// and a total frame count (low nibble) into one byte.
func Header(index, total int) byte {
	return byte((index+1)<<4) | byte(total&0x0F)
}

// TotalFrames extracts the total-frame-count from a frame's first byte. A
// low nibble of 0 is the empty-payload sentinel and is reported as 1.
func TotalFrames(first byte) int {
	n := int(first & 0x0F)
	if n == 0 {
		return 1
	}
	return n
}

// Chunk splits payload into ProBluetooth frames of at most 1+MaxPerFrame
// bytes each. An empty payload produces the single-byte empty sentinel
// frame. Callers must keep payloads within MaxPayload bytes.
func Chunk(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return [][]byte{{emptySentinel}}, nil
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("frame: payload %d bytes exceeds maximum %d", len(payload), MaxPayload)
	}

	n := (len(payload) + MaxPerFrame - 1) / MaxPerFrame
	frames := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * MaxPerFrame
		end := start + MaxPerFrame
		if end > len(payload) {
			end = len(payload)
		}
		f := make([]byte, 1+(end-start))
		f[0] = Header(i, n)
		copy(f[1:], payload[start:end])
		frames[i] = f
	}
	return frames, nil
}

// Assemble strips the header byte from each frame and concatenates the
// remaining payload bytes. Frames of length <= 1 contribute nothing.
func Assemble(frames [][]byte) []byte {
	var out []byte
	for _, f := range frames {
		if len(f) <= 1 {
			continue
		}
		out = append(out, f[1:]...)
	}
	return out
}
