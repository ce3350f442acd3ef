// Package packet implements the framing subset of the Minecraft Java
// protocol used by the server-list ping flow: VarInt encoding, length-prefixed
// frames and VarInt-prefixed UTF-8 strings.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrVarintTooBig is returned when a VarInt carries a continuation bit
	// in its fifth byte. The encoding caps at 5 bytes (35 data bits).
	ErrVarintTooBig = errors.New("packet: varint is too big")

	ErrFrameTooLarge = errors.New("packet: frame is too large")
)

// MaxFrameSize bounds inbound frames. The handshake and status packets fit
// in a fraction of this; anything larger is not a client we care about.
const MaxFrameSize = 1 << 14

const maxVarintBytes = 5

// AppendVarint appends v in the 7-bits-per-byte little-endian-group encoding.
func AppendVarint(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendString appends the VarInt byte length followed by the UTF-8 bytes.
func AppendString(dst []byte, s string) []byte {
	dst = AppendVarint(dst, uint32(len(s)))
	return append(dst, s...)
}

// ReadStreamVarint decodes a VarInt byte by byte from a stream.
func ReadStreamVarint(r io.Reader) (uint32, error) {
	var value uint32
	var buf [1]byte
	for i := 0; ; i++ {
		if i == maxVarintBytes {
			return 0, ErrVarintTooBig
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// ReadFrame reads one length-prefixed frame and returns its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	length, err := ReadStreamVarint(r)
	if err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes the payload prefixed with its VarInt byte length.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := AppendVarint(make([]byte, 0, len(payload)+maxVarintBytes), uint32(len(payload)))
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}

// Reader is a cursor over a single frame's payload. Each connection owns its
// buffer exclusively, so Reader carries no synchronization.
type Reader struct {
	cursor int
	data   []byte
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) ReadVarint() (uint32, error) {
	var value uint32
	for i := 0; ; i++ {
		if i == maxVarintBytes {
			return 0, ErrVarintTooBig
		}
		if r.cursor >= len(r.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := r.data[r.cursor]
		r.cursor++
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// ReadString reads a VarInt byte length followed by that many UTF-8 bytes.
func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if length > MaxFrameSize {
		return "", fmt.Errorf("%w: string of %d bytes", ErrFrameTooLarge, length)
	}
	end := r.cursor + int(length)
	if end > len(r.data) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.data[r.cursor:end])
	r.cursor = end
	return s, nil
}

// ReadUint16 reads a big-endian unsigned short.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.cursor+2 > len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint16(r.data[r.cursor:])
	r.cursor += 2
	return v, nil
}

// Remaining returns the unread tail of the payload.
func (r *Reader) Remaining() []byte {
	return r.data[r.cursor:]
}
