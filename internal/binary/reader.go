// Package binary provides low-level binary I/O for DM3/DM4 tag files.
//
// The container format stores all structural fields (version tag, counts,
// name lengths, type ids, size fields) big-endian, while leaf payloads
// (scalar values, array element bytes) are little-endian. Reader and Writer
// handle the structural fields; payload decoding is left to the caller, which
// works on raw bytes obtained via ReadBytes/WriteBytes.
//
// Size fields are 4 bytes wide in DM3 files and 8 bytes wide in DM4 files.
// The width is carried in Config and threaded through every reader and
// writer, never held in package state.
package binary

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrInvalidSizeWidth is returned when a size-field width other than 4 or 8
// is configured.
var ErrInvalidSizeWidth = errors.New("invalid size-field width: must be 4 or 8")

// Config holds the size-field width, derived from the file's version tag.
type Config struct {
	SizeWidth int // 4 for DM3, 8 for DM4
}

// Valid reports whether the configuration is usable.
func (c Config) Valid() bool {
	return c.SizeWidth == 4 || c.SizeWidth == 8
}

// Reader reads DM container fields from an io.ReaderAt, tracking its own
// position.
type Reader struct {
	r         io.ReaderAt
	sizeWidth int
	pos       int64
}

// NewReader creates a reader with the given configuration.
func NewReader(r io.ReaderAt, cfg Config) *Reader {
	return &Reader{r: r, sizeWidth: cfg.SizeWidth, pos: 0}
}

// At returns a new reader positioned at the given offset. The new reader
// shares the underlying io.ReaderAt but has independent position.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, sizeWidth: r.sizeWidth, pos: offset}
}

// WithSizeWidth returns a new reader with the given size-field width,
// keeping the current position. Used after the version tag has been read.
func (r *Reader) WithSizeWidth(width int) *Reader {
	return &Reader{r: r.r, sizeWidth: width, pos: r.pos}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// SizeWidth returns the configured size-field width in bytes.
func (r *Reader) SizeWidth() int {
	return r.sizeWidth
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint32 reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a big-endian unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

// ReadSize reads a size field using the configured width.
func (r *Reader) ReadSize() (uint64, error) {
	switch r.sizeWidth {
	case 4:
		v, err := r.ReadUint32()
		return uint64(v), err
	case 8:
		return r.ReadUint64()
	default:
		return 0, ErrInvalidSizeWidth
	}
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) {
	r.pos += n
}
