// Package binxml decodes the tokenized Binary XML dialect used inside EVTX
// chunks: a positioned byte cursor, a typed value decoder, and a token
// stream reader that together turn an opaque byte range into a tree of
// elements.
package binxml

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

// Error kinds returned by Reader and the decoders built on top of it.
var (
	ErrOutOfBounds = errors.New("binxml: read out of bounds")
	ErrBadEncoding = errors.New("binxml: invalid UTF-16 encoding")
)

// Reader is a little-endian positioned cursor over a chunk buffer. It never
// copies the underlying bytes; string and fragment values borrow slices of
// buf for as long as the chunk that owns buf is alive.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential little-endian decoding starting at
// offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Position returns the current absolute offset into buf.
func (r *Reader) Position() int { return r.pos }

// Len returns the size of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Bytes returns the full underlying buffer. Callers must not retain slices
// past the lifetime of the chunk that owns it.
func (r *Reader) Bytes() []byte { return r.buf }

func (r *Reader) require(n int) error {
	if n < 0 || r.pos+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes at %d, have %d", ErrOutOfBounds, n, r.pos, len(r.buf))
	}
	return nil
}

// SeekAbs repositions the cursor to an absolute offset within buf.
func (r *Reader) SeekAbs(off int) error {
	if off < 0 || off > len(r.buf) {
		return fmt.Errorf("%w: seek to %d, len %d", ErrOutOfBounds, off, len(r.buf))
	}
	r.pos = off
	return nil
}

// SeekRel moves the cursor by a relative byte delta.
func (r *Reader) SeekRel(delta int) error {
	return r.SeekAbs(r.pos + delta)
}

// PeekU8 returns the byte at the current position without advancing.
func (r *Reader) PeekU8() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	return r.buf[r.pos], nil
}

// ReadU8 reads and consumes one byte.
func (r *Reader) ReadU8() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadI8 reads one signed byte.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadI16 reads a little-endian int16.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadI32 reads a little-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadI64 reads a little-endian int64.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadF32 reads a little-endian IEEE-754 single.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian IEEE-754 double.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// GUID is a Microsoft-style mixed-endian 16-byte identifier.
type GUID [16]byte

// String renders the GUID in the canonical
// "XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX" form.
func (g GUID) String() string {
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		binary.LittleEndian.Uint32(g[0:4]),
		binary.LittleEndian.Uint16(g[4:6]),
		binary.LittleEndian.Uint16(g[6:8]),
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}

// ReadGUID reads 16 bytes per the Microsoft mixed-endian GUID convention
// (first three fields little-endian, last two big-endian byte runs).
func (r *Reader) ReadGUID() (GUID, error) {
	var g GUID
	if err := r.require(16); err != nil {
		return g, err
	}
	copy(g[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return g, nil
}

// ReadBytes reads and returns a copy-free slice of n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadUTF16 reads n UTF-16LE code units and decodes them to a string.
// Unpaired surrogates are replaced with U+FFFD rather than failing the
// whole read, matching the format's tolerant-decoding policy.
func (r *Reader) ReadUTF16(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("%w: negative code unit count %d", ErrOutOfBounds, n)
	}
	if err := r.require(n * 2); err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(r.buf[r.pos+i*2:])
	}
	r.pos += n * 2
	return string(utf16.Decode(units)), nil
}

// Sub returns a new Reader over the byte range [off, off+n) of the same
// underlying buffer, positioned at its own offset 0. It does not affect r's
// position.
func (r *Reader) Sub(off, n int) (*Reader, error) {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: sub-range [%d,%d) of len %d", ErrOutOfBounds, off, off+n, len(r.buf))
	}
	return &Reader{buf: r.buf[off : off+n]}, nil
}
