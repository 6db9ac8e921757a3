package binary

import (
	"encoding/binary"
	"io"
)

// Writer writes DM container fields to an io.WriterAt, tracking its own
// position. Positioned writes make length backpatching a matter of
// remembering an offset and writing to it later; no stream seeking is
// involved.
type Writer struct {
	w         io.WriterAt
	sizeWidth int
	pos       int64
}

// NewWriter creates a writer with the given configuration.
func NewWriter(w io.WriterAt, cfg Config) *Writer {
	return &Writer{w: w, sizeWidth: cfg.SizeWidth, pos: 0}
}

// At returns a new writer positioned at the given offset. The new writer
// shares the underlying io.WriterAt but has independent position.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, sizeWidth: w.sizeWidth, pos: offset}
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 {
	return w.pos
}

// SizeWidth returns the configured size-field width in bytes.
func (w *Writer) SizeWidth() int {
	return w.sizeWidth
}

// WriteBytes writes the given bytes at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteUint8 writes a single byte.
func (w *Writer) WriteUint8(v uint8) error {
	return w.WriteBytes([]byte{v})
}

// WriteUint16 writes a big-endian unsigned 16-bit integer.
func (w *Writer) WriteUint16(v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return w.WriteBytes(buf)
}

// WriteUint32 writes a big-endian unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return w.WriteBytes(buf)
}

// WriteInt32 writes a big-endian signed 32-bit integer.
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

// WriteUint64 writes a big-endian unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return w.WriteBytes(buf)
}

// WriteSize writes a size field using the configured width.
func (w *Writer) WriteSize(v uint64) error {
	switch w.sizeWidth {
	case 4:
		return w.WriteUint32(uint32(v))
	case 8:
		return w.WriteUint64(v)
	default:
		return ErrInvalidSizeWidth
	}
}

// ReserveSize writes a zero size field and returns its offset, for later
// backpatching with PatchSize. This is the single helper behind the three
// length fields the format backpatches: the file size, the DM4 per-entry
// byte length, and the leaf data header length.
func (w *Writer) ReserveSize() (int64, error) {
	off := w.pos
	if err := w.WriteSize(0); err != nil {
		return 0, err
	}
	return off, nil
}

// PatchSize overwrites a previously reserved size field without moving the
// current position.
func (w *Writer) PatchSize(offset int64, v uint64) error {
	saved := w.pos
	w.pos = offset
	err := w.WriteSize(v)
	w.pos = saved
	return err
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// SeekableWriterAt wraps an io.WriteSeeker to provide io.WriterAt
// functionality. This is useful when the destination is a forward stream
// that supports seeking but not positioned writes.
type SeekableWriterAt struct {
	ws io.WriteSeeker
}

// NewSeekableWriterAt creates a WriterAt from a WriteSeeker.
func NewSeekableWriterAt(ws io.WriteSeeker) *SeekableWriterAt {
	return &SeekableWriterAt{ws: ws}
}

// WriteAt implements io.WriterAt.
func (s *SeekableWriterAt) WriteAt(p []byte, off int64) (n int, err error) {
	if _, err := s.ws.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.ws.Write(p)
}
