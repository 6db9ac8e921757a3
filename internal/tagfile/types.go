package tagfile

import (
	"encoding/binary"
	"fmt"
	"math"

	binpkg "github.com/robert-malhotra/go-dm4/internal/binary"
)

// Version identifies the file format generation. It selects the width of
// every size field in the container.
type Version int

const (
	V3 Version = 3 // 32-bit size fields
	V4 Version = 4 // 64-bit size fields
)

// Valid reports whether v is a known format version.
func (v Version) Valid() bool {
	return v == V3 || v == V4
}

// SizeWidth returns the byte width of size fields for this version.
func (v Version) SizeWidth() int {
	if v == V4 {
		return 8
	}
	return 4
}

// TagType is the container's primitive type id for leaf data.
type TagType int

const (
	TypeShort  TagType = 2  // int16
	TypeLong   TagType = 3  // int32
	TypeUShort TagType = 4  // uint16
	TypeUInt   TagType = 5  // uint32
	TypeFloat  TagType = 6  // float32
	TypeDouble TagType = 7  // float64
	TypeBool   TagType = 8  // one byte, zero or nonzero
	TypeChar   TagType = 9  // int8
	TypeOctet  TagType = 10 // int8
	TypeInt64  TagType = 11 // int64
	TypeUInt64 TagType = 12 // uint64
	TypeStruct TagType = 15
	TypeString TagType = 18
	TypeArray  TagType = 20
)

// Entry kind bytes. The array id doubles as the nested-group marker at the
// entry level.
const (
	kindGroup byte = 20
	kindData  byte = 21
)

func (t TagType) String() string {
	switch t {
	case TypeShort:
		return "short"
	case TypeLong:
		return "long"
	case TypeUShort:
		return "ushort"
	case TypeUInt:
		return "uint"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "bool"
	case TypeChar:
		return "char"
	case TypeOctet:
		return "octet"
	case TypeInt64:
		return "int64"
	case TypeUInt64:
		return "uint64"
	case TypeStruct:
		return "struct"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Size returns the byte width of one value of this type, or 0 for compound
// types (struct, string, array).
func (t TagType) Size() int {
	switch t {
	case TypeBool, TypeChar, TypeOctet:
		return 1
	case TypeShort, TypeUShort:
		return 2
	case TypeLong, TypeUInt, TypeFloat:
		return 4
	case TypeDouble, TypeInt64, TypeUInt64:
		return 8
	default:
		return 0
	}
}

// IsScalar reports whether t is a fixed-width scalar type (including bool).
func (t TagType) IsScalar() bool {
	return t.Size() > 0
}

// IsInteger reports whether t holds integer values. Used by the name
// coercion heuristic, which only converts integer-valued arrays to text.
func (t TagType) IsInteger() bool {
	switch t {
	case TypeShort, TypeLong, TypeUShort, TypeUInt, TypeChar, TypeOctet, TypeInt64, TypeUInt64:
		return true
	default:
		return false
	}
}

// readScalar decodes one little-endian scalar payload value of type t.
// This is the single read-side dispatch point over the type registry.
func readScalar(r *binpkg.Reader, t TagType) (Scalar, error) {
	buf, err := r.ReadBytes(t.Size())
	if err != nil {
		return Scalar{}, err
	}
	s := Scalar{Type: t}
	switch t {
	case TypeShort:
		s.Value = int16(binary.LittleEndian.Uint16(buf))
	case TypeLong:
		s.Value = int32(binary.LittleEndian.Uint32(buf))
	case TypeUShort:
		s.Value = binary.LittleEndian.Uint16(buf)
	case TypeUInt:
		s.Value = binary.LittleEndian.Uint32(buf)
	case TypeFloat:
		s.Value = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	case TypeDouble:
		s.Value = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case TypeBool:
		s.Value = buf[0] != 0
	case TypeChar, TypeOctet:
		s.Value = int8(buf[0])
	case TypeInt64:
		s.Value = int64(binary.LittleEndian.Uint64(buf))
	case TypeUInt64:
		s.Value = binary.LittleEndian.Uint64(buf)
	default:
		return Scalar{}, fmt.Errorf("%w: scalar type %s", ErrCorruptTagStructure, t)
	}
	return s, nil
}

// writeScalar encodes one little-endian scalar payload value. The dynamic
// type of s.Value must match s.Type exactly.
func writeScalar(w *binpkg.Writer, s Scalar) error {
	if width := scalarWidth(s); width == 0 || width != s.Type.Size() {
		return fmt.Errorf("%w: value %T does not fit tag type %s", ErrUnsupportedType, s.Value, s.Type)
	}
	buf := make([]byte, s.Type.Size())
	switch v := s.Value.(type) {
	case int16:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case int32:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case uint16:
		binary.LittleEndian.PutUint16(buf, v)
	case uint32:
		binary.LittleEndian.PutUint32(buf, v)
	case float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	case float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	case bool:
		if v {
			buf[0] = 1
		}
	case int8:
		buf[0] = byte(v)
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	case uint64:
		binary.LittleEndian.PutUint64(buf, v)
	default:
		return fmt.Errorf("%w: scalar value %T", ErrUnsupportedType, s.Value)
	}
	return w.WriteBytes(buf)
}

// scalarWidth returns the byte width implied by the dynamic type of s.Value.
func scalarWidth(s Scalar) int {
	switch s.Value.(type) {
	case bool, int8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	case int64, uint64, float64:
		return 8
	default:
		return 0
	}
}

// ScalarOf maps a plain Go value to a typed Scalar using the container's
// conventions: bools map to the bool type, integers to long unless they fall
// outside the signed 32-bit range (then the 64-bit signed type, never a
// silent truncation), float64 to double and float32 to float.
func ScalarOf(v any) (Scalar, error) {
	switch x := v.(type) {
	case bool:
		return Scalar{Type: TypeBool, Value: x}, nil
	case int:
		return intScalar(int64(x)), nil
	case int8:
		return intScalar(int64(x)), nil
	case int16:
		return intScalar(int64(x)), nil
	case int32:
		return intScalar(int64(x)), nil
	case int64:
		return intScalar(x), nil
	case uint8:
		return intScalar(int64(x)), nil
	case uint16:
		return intScalar(int64(x)), nil
	case uint32:
		return intScalar(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Scalar{Type: TypeUInt64, Value: x}, nil
		}
		return intScalar(int64(x)), nil
	case float32:
		return Scalar{Type: TypeFloat, Value: x}, nil
	case float64:
		return Scalar{Type: TypeDouble, Value: x}, nil
	default:
		return Scalar{}, fmt.Errorf("%w: no tag type for %T", ErrUnsupportedType, v)
	}
}

func intScalar(v int64) Scalar {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return Scalar{Type: TypeInt64, Value: v}
	}
	return Scalar{Type: TypeLong, Value: int32(v)}
}
