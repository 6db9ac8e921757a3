package dm

import (
	"fmt"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// DType is the element type of an in-memory image buffer.
type DType int

const (
	Int8 DType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Complex64
	Complex128
)

func (t DType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	default:
		return fmt.Sprintf("dtype(%d)", int(t))
	}
}

// ItemSize returns the byte width of one element.
func (t DType) ItemSize() int {
	switch t {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// pixelTypes is the registry of image pixel type ids. An image declares its
// pixel type separately from the tag-level element type of its buffer, and
// the two must agree through this table. Several ids share an element type
// (6, 9 and 14 are all stored as signed bytes); lookups by element type
// take the first match, so saving cannot distinguish them. Id 23 packs an
// RGBA pixel into one 32-bit element.
var pixelTypes = []struct {
	id   int64
	name string
	kind DType
}{
	{1, "int16", Int16},
	{2, "float32", Float32},
	{3, "Complex64", Complex64},
	{6, "uint8", Int8},
	{7, "int32", Int32},
	{9, "int8", Int8},
	{10, "uint16", Uint16},
	{11, "uint32", Uint32},
	{12, "float64", Float64},
	{13, "Complex128", Complex128},
	{14, "Bool", Int8},
	{23, "RGB", Int32},
}

const pixelRGB = 23

func kindOfPixelID(id int64) (DType, bool) {
	for _, p := range pixelTypes {
		if p.id == id {
			return p.kind, true
		}
	}
	return 0, false
}

func pixelIDOfKind(kind DType) (int64, bool) {
	for _, p := range pixelTypes {
		if p.kind == kind {
			return p.id, true
		}
	}
	return 0, false
}

// kindOfTagType maps a tag-level array element type to the buffer element
// type it decodes to. The bool id maps to a signed byte: writers encode
// byte buffers with the bool id, so bool, char and octet elements are
// indistinguishable in memory.
func kindOfTagType(t tagfile.TagType) (DType, bool) {
	switch t {
	case tagfile.TypeShort:
		return Int16, true
	case tagfile.TypeLong:
		return Int32, true
	case tagfile.TypeUShort:
		return Uint16, true
	case tagfile.TypeUInt:
		return Uint32, true
	case tagfile.TypeFloat:
		return Float32, true
	case tagfile.TypeDouble:
		return Float64, true
	case tagfile.TypeBool, tagfile.TypeChar, tagfile.TypeOctet:
		return Int8, true
	case tagfile.TypeInt64:
		return Int64, true
	case tagfile.TypeUInt64:
		return Uint64, true
	default:
		return 0, false
	}
}

// tagTypeOfKind maps a buffer element type to the tag-level type its raw
// bytes are written as. Int8 round-trips through the bool id, matching
// kindOfTagType. Complex types are stored as struct arrays and bare uint8
// buffers are not representable, so neither has a mapping here.
func tagTypeOfKind(kind DType) (tagfile.TagType, bool) {
	switch kind {
	case Int8:
		return tagfile.TypeBool, true
	case Int16:
		return tagfile.TypeShort, true
	case Uint16:
		return tagfile.TypeUShort, true
	case Int32:
		return tagfile.TypeLong, true
	case Uint32:
		return tagfile.TypeUInt, true
	case Int64:
		return tagfile.TypeInt64, true
	case Uint64:
		return tagfile.TypeUInt64, true
	case Float32:
		return tagfile.TypeFloat, true
	case Float64:
		return tagfile.TypeDouble, true
	default:
		return 0, false
	}
}

// complexFieldTypes returns the two-float tuple layout a complex element
// type is stored as.
func complexFieldTypes(kind DType) ([]tagfile.TagType, bool) {
	switch kind {
	case Complex64:
		return []tagfile.TagType{tagfile.TypeFloat, tagfile.TypeFloat}, true
	case Complex128:
		return []tagfile.TagType{tagfile.TypeDouble, tagfile.TypeDouble}, true
	default:
		return nil, false
	}
}

// complexKindOfFields is the inverse of complexFieldTypes.
func complexKindOfFields(fields []tagfile.TagType) (DType, bool) {
	if len(fields) != 2 || fields[0] != fields[1] {
		return 0, false
	}
	switch fields[0] {
	case tagfile.TypeFloat:
		return Complex64, true
	case tagfile.TypeDouble:
		return Complex128, true
	default:
		return 0, false
	}
}
