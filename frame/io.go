package frame

import "fmt"

// WriteFunc writes one already-chunked frame and reports any transport
// failure. The ble package supplies one backed by a BLE write primitive.
type WriteFunc func(frame []byte) error

// Writer sequences a chunked payload across calls to a WriteFunc, stopping
// at the first failure (no partial retry — the pump would reject replays).
type Writer struct {
	write WriteFunc
}

func NewWriter(write WriteFunc) *Writer {
	return &Writer{write: write}
}

// WriteMessage chunks payload and writes every frame in order.
func (w *Writer) WriteMessage(payload []byte) error {
	frames, err := Chunk(payload)
	if err != nil {
		return err
	}
	for i, f := range frames {
		if err := w.write(f); err != nil {
			return fmt.Errorf("frame: write frame %d/%d: %w", i+1, len(frames), err)
		}
	}
	return nil
}

// ReadFunc reads one frame from a transport. readFirst reads the initial
// frame (whose header announces the total count); readNext reads each
// subsequent frame from the extended-read channel.
type ReadFunc func() ([]byte, error)

// Reader reassembles a chunked message read across one or more ReadFunc
// calls.
type Reader struct {
	readFirst ReadFunc
	readNext  ReadFunc
}

func NewReader(readFirst, readNext ReadFunc) *Reader {
	return &Reader{readFirst: readFirst, readNext: readNext}
}

// ReadMessage reads the first frame, determines the total frame count from
// its header, reads any remaining frames, and assembles the payload. Any
// missing frame aborts with an error rather than returning a partial
// buffer.
func (r *Reader) ReadMessage() ([]byte, error) {
	first, err := r.readFirst()
	if err != nil {
		return nil, fmt.Errorf("frame: read first frame: %w", err)
	}
	if len(first) <= 1 {
		return nil, fmt.Errorf("frame: empty first frame")
	}

	total := TotalFrames(first[0])
	frames := make([][]byte, 1, total)
	frames[0] = first

	for i := 1; i < total; i++ {
		f, err := r.readNext()
		if err != nil {
			return nil, fmt.Errorf("frame: read frame %d/%d: %w", i+1, total, err)
		}
		if len(f) <= 1 {
			return nil, fmt.Errorf("frame: missing frame %d/%d", i+1, total)
		}
		frames = append(frames, f)
	}

	return Assemble(frames), nil
}
