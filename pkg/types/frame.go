package types

import "time"

// Frame represents one encoded JPEG image at a single video instant.
// The data is immutable once published: a producer hands the buffer to the
// sink and must never reuse or modify it afterwards.
type Frame struct {
	Data      []byte    // Encoded JPEG bytes
	Timestamp time.Time // Capture timestamp
	Sequence  uint64    // Publish sequence number (monotonically increasing)
}

// Len returns the encoded size in bytes.
func (f *Frame) Len() int {
	return len(f.Data)
}
