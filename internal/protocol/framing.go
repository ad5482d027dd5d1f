package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length prefix carried by every framed packet.
	HeaderSize = 4
	// MaxFrameSize caps a single stream frame.
	MaxFrameSize = 1 << 20
)

// ErrFrameTooLarge reports a length prefix above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Wrap prefixes the encoded packet with its big-endian length.
func Wrap(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// Encode marshals and frames a packet.
func Encode(p *Packet) []byte {
	return Wrap(Marshal(p))
}

// Unwrap decodes one complete frame such as a datagram.
func Unwrap(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%w: short frame of %d bytes", ErrMalformed, len(frame))
	}
	size := binary.BigEndian.Uint32(frame)
	if int(size) != len(frame)-HeaderSize {
		return nil, fmt.Errorf("%w: header says %d bytes, frame carries %d", ErrMalformed, size, len(frame)-HeaderSize)
	}
	return Unmarshal(frame[HeaderSize:])
}

// FrameBuffer reassembles frames from a byte stream.
type FrameBuffer struct {
	buf []byte
}

// Feed appends stream bytes and returns every complete payload now available.
// The returned slices are owned by the caller.
func (f *FrameBuffer) Feed(data []byte) ([][]byte, error) {
	f.buf = append(f.buf, data...)
	var frames [][]byte
	for len(f.buf) >= HeaderSize {
		size := binary.BigEndian.Uint32(f.buf)
		if size > MaxFrameSize {
			f.buf = nil
			return frames, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
		}
		end := HeaderSize + int(size)
		if len(f.buf) < end {
			break
		}
		payload := make([]byte, size)
		copy(payload, f.buf[HeaderSize:end])
		frames = append(frames, payload)
		f.buf = f.buf[end:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return frames, nil
}

// Pending returns the number of buffered bytes waiting for a full frame.
func (f *FrameBuffer) Pending() int { return len(f.buf) }
