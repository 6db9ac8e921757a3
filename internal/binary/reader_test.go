package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNewReader(t *testing.T) {
	r := NewReader(bytes.NewReader(nil), Config{SizeWidth: 4})
	if r.Pos() != 0 {
		t.Errorf("expected initial position 0, got %d", r.Pos())
	}
	if r.SizeWidth() != 4 {
		t.Errorf("expected size width 4, got %d", r.SizeWidth())
	}
}

func TestReaderAt(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, 64)), Config{SizeWidth: 4})
	r2 := r.At(16)
	if r2.Pos() != 16 {
		t.Errorf("expected position 16, got %d", r2.Pos())
	}
	if r.Pos() != 0 {
		t.Errorf("expected original position 0, got %d", r.Pos())
	}
}

func TestReaderWithSizeWidth(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, 16)), Config{SizeWidth: 4})
	r2 := r.WithSizeWidth(8)
	if r2.SizeWidth() != 8 {
		t.Errorf("expected size width 8, got %d", r2.SizeWidth())
	}
	if r.SizeWidth() != 4 {
		t.Errorf("expected original size width 4, got %d", r.SizeWidth())
	}
	if r2.Pos() != r.Pos() {
		t.Errorf("WithSizeWidth changed position: %d vs %d", r2.Pos(), r.Pos())
	}
}

func TestReadBigEndianFields(t *testing.T) {
	data := []byte{
		0x15,
		0x01, 0x02,
		0x03, 0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e,
	}
	r := NewReader(bytes.NewReader(data), Config{SizeWidth: 4})

	u8, err := r.ReadUint8()
	if err != nil || u8 != 0x15 {
		t.Errorf("ReadUint8 = %#x, %v; want 0x15", u8, err)
	}
	u16, err := r.ReadUint16()
	if err != nil || u16 != 0x0102 {
		t.Errorf("ReadUint16 = %#x, %v; want 0x0102", u16, err)
	}
	u32, err := r.ReadUint32()
	if err != nil || u32 != 0x03040506 {
		t.Errorf("ReadUint32 = %#x, %v; want 0x03040506", u32, err)
	}
	u64, err := r.ReadUint64()
	if err != nil || u64 != 0x0708090a0b0c0d0e {
		t.Errorf("ReadUint64 = %#x, %v; want 0x0708090a0b0c0d0e", u64, err)
	}
	if r.Pos() != int64(len(data)) {
		t.Errorf("expected position %d, got %d", len(data), r.Pos())
	}
}

func TestReadInt32(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xfe}), Config{SizeWidth: 4})
	v, err := r.ReadInt32()
	if err != nil {
		t.Fatalf("ReadInt32: %v", err)
	}
	if v != -2 {
		t.Errorf("ReadInt32 = %d, want -2", v)
	}
}

func TestReadSizeWidths(t *testing.T) {
	tests := []struct {
		width int
		data  []byte
		want  uint64
	}{
		{4, []byte{0x01, 0x02, 0x03, 0x04}, 0x01020304},
		{8, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 0x0102030405060708},
	}
	for _, tt := range tests {
		r := NewReader(bytes.NewReader(tt.data), Config{SizeWidth: tt.width})
		got, err := r.ReadSize()
		if err != nil {
			t.Fatalf("ReadSize width %d: %v", tt.width, err)
		}
		if got != tt.want {
			t.Errorf("width %d: ReadSize = %#x, want %#x", tt.width, got, tt.want)
		}
	}
}

func TestReadSizeInvalidWidth(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, 8)), Config{SizeWidth: 3})
	if _, err := r.ReadSize(); !errors.Is(err, ErrInvalidSizeWidth) {
		t.Errorf("expected ErrInvalidSizeWidth, got %v", err)
	}
}

func TestReadBytesAndSkip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	r := NewReader(bytes.NewReader(data), Config{SizeWidth: 4})

	r.Skip(2)
	b, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(b, []byte{3, 4, 5}) {
		t.Errorf("ReadBytes = % x, want 03 04 05", b)
	}
	if r.Pos() != 5 {
		t.Errorf("expected position 5, got %d", r.Pos())
	}
}

func TestReadPastEnd(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}), Config{SizeWidth: 4})
	if _, err := r.ReadUint32(); err == nil {
		t.Error("expected error reading past end of data")
	}
	r2 := NewReader(bytes.NewReader(nil), Config{SizeWidth: 4})
	if _, err := r2.ReadUint8(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF reading from empty data, got %v", err)
	}
}
