package tagfile

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Node is one node of a decoded tag tree: either a *Group or a leaf value.
type Node interface {
	isNode()
}

// Group is a container node. Dict groups hold only named entries; list
// groups hold only unnamed entries, in order. The two are never mixed.
type Group struct {
	Dict    bool
	Entries []Entry
}

// Entry is one slot of a group.
type Entry struct {
	Name  string
	Named bool
	Value Node
}

// Scalar is a typed scalar leaf. Value's dynamic type is fixed by Type:
// int16, int32, uint16, uint32, float32, float64, bool, int8, int64 or
// uint64.
type Scalar struct {
	Type  TagType
	Value any
}

// String is a text leaf. Producers normally store text as arrays of UTF-16
// code units rather than the string type; String nodes also result from the
// name coercion heuristic on read, and are written back as arrays.
type String struct {
	Text string
}

// Array is a homogeneous array leaf holding raw little-endian element bytes.
// Shape, when set, records the dimensions of the buffer (outermost first)
// and enables the chunked write path for large buffers; it is not stored in
// the file.
type Array struct {
	ElemType TagType
	Raw      []byte
	Shape    []int
}

// StructValue is a fixed tuple of heterogeneous scalars.
type StructValue struct {
	Fields []Scalar
}

// StructArray is an array of fixed-size heterogeneous tuples, stored as
// concatenated raw little-endian bytes. The format uses it to represent
// complex numbers (two floats or two doubles per element).
type StructArray struct {
	FieldTypes []TagType
	Raw        []byte
}

func (*Group) isNode()       {}
func (Scalar) isNode()       {}
func (String) isNode()       {}
func (*Array) isNode()       {}
func (*StructValue) isNode() {}
func (*StructArray) isNode() {}

// NewDictGroup returns an empty dict-like group.
func NewDictGroup() *Group {
	return &Group{Dict: true}
}

// NewListGroup returns an empty list-like group.
func NewListGroup() *Group {
	return &Group{}
}

// Set appends a named entry. A nil value is dropped, matching the write-side
// skip rule.
func (g *Group) Set(name string, v Node) {
	if v == nil {
		return
	}
	g.Entries = append(g.Entries, Entry{Name: name, Named: true, Value: v})
}

// Append appends an unnamed entry.
func (g *Group) Append(v Node) {
	if v == nil {
		return
	}
	g.Entries = append(g.Entries, Entry{Value: v})
}

// Get returns the value of the last entry with the given name. Key sets are
// unique in well-formed files; on duplicates the last one wins, matching
// how dict-building readers behave.
func (g *Group) Get(name string) (Node, bool) {
	if g == nil {
		return nil, false
	}
	for i := len(g.Entries) - 1; i >= 0; i-- {
		if g.Entries[i].Named && g.Entries[i].Name == name {
			return g.Entries[i].Value, true
		}
	}
	return nil, false
}

// Child returns the named nested group, or nil.
func (g *Group) Child(name string) *Group {
	v, ok := g.Get(name)
	if !ok {
		return nil
	}
	sub, _ := v.(*Group)
	return sub
}

// Float returns a named scalar coerced to float64.
func (g *Group) Float(name string) (float64, bool) {
	v, ok := g.Get(name)
	if !ok {
		return 0, false
	}
	s, ok := v.(Scalar)
	if !ok {
		return 0, false
	}
	switch x := s.Value.(type) {
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Int returns a named scalar coerced to int64.
func (g *Group) Int(name string) (int64, bool) {
	f, ok := g.Float(name)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// Bool returns a named bool scalar. Numeric scalars count as true when
// nonzero.
func (g *Group) Bool(name string) (bool, bool) {
	v, ok := g.Get(name)
	if !ok {
		return false, false
	}
	s, ok := v.(Scalar)
	if !ok {
		return false, false
	}
	if b, ok := s.Value.(bool); ok {
		return b, true
	}
	f, ok := g.Float(name)
	return f != 0, ok
}

// Text returns a named text value: a String node, or an array of UTF-16
// code units decoded to a string.
func (g *Group) Text(name string) (string, bool) {
	v, ok := g.Get(name)
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case String:
		return x.Text, true
	case *Array:
		if x.ElemType == TypeUShort {
			s, err := x.Text()
			if err == nil {
				return s, true
			}
		}
	}
	return "", false
}

// Count returns the number of elements in the array.
func (a *Array) Count() int {
	if size := a.ElemType.Size(); size > 0 {
		return len(a.Raw) / size
	}
	return 0
}

// Text decodes the array's raw bytes as UTF-16LE text. Only meaningful for
// ushort arrays, the convention producers use for strings.
func (a *Array) Text() (string, error) {
	return utf16Codec.NewDecoder().String(string(a.Raw))
}

// NewTextArray encodes text using the string-as-array convention: UTF-16LE
// code units in a ushort array.
func NewTextArray(s string) (*Array, error) {
	enc, err := utf16Codec.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %q: %v", ErrUnsupportedType, s, err)
	}
	return &Array{ElemType: TypeUShort, Raw: []byte(enc)}, nil
}

// ElementSize returns the byte width of one tuple, or 0 if a field type is
// not scalar.
func (a *StructArray) ElementSize() int {
	size := 0
	for _, t := range a.FieldTypes {
		w := t.Size()
		if w == 0 {
			return 0
		}
		size += w
	}
	return size
}

// Count returns the number of tuples in the struct array.
func (a *StructArray) Count() int {
	if size := a.ElementSize(); size > 0 {
		return len(a.Raw) / size
	}
	return 0
}

var utf16Codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Entry names are stored Latin-1 encoded.
func decodeName(raw []byte) (string, error) {
	return charmap.ISO8859_1.NewDecoder().String(string(raw))
}

func encodeName(name string) ([]byte, error) {
	enc, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		return nil, fmt.Errorf("%w: tag name %q is not Latin-1", ErrUnsupportedType, name)
	}
	return []byte(enc), nil
}
