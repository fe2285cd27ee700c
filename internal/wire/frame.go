// Package wire implements the length-prefixed frame codec that sits under
// the protocol message envelope: each frame on the stream is a big-endian
// u32 length followed by that many payload bytes. The decoder is stateful
// across reads so partial frames buffer until complete.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DeltaLaboratory/kvdb/internal/kvdberr"
)

// DefaultMaxFrameSize bounds the declared frame length accepted from a peer;
// a larger declared length closes the connection rather than allocating.
const DefaultMaxFrameSize = 64 << 20 // 64MiB

// Encode prepends the 4-byte big-endian length to payload.
func Encode(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// Decoder reads one complete frame at a time off a buffered reader,
// tolerating however many partial TCP segments the payload was split across.
type Decoder struct {
	r         *bufio.Reader
	maxFrame  uint32
	lengthBuf [4]byte
}

func NewDecoder(r io.Reader, maxFrameSize uint32) *Decoder {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{r: bufio.NewReader(r), maxFrame: maxFrameSize}
}

// Next blocks until one full frame is available and returns its payload.
// A declared length above maxFrameSize is a *kvdberr.Error of kind Wire; the
// caller must treat this as fatal to the connection.
func (d *Decoder) Next() ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(d.lengthBuf[:])
	if length > d.maxFrame {
		return nil, kvdberr.New(kvdberr.Wire, fmt.Sprintf("frame length %d exceeds cap %d", length, d.maxFrame))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
