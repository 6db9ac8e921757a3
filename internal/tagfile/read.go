package tagfile

import (
	"fmt"
	"io"
	"math"
	"regexp"

	binpkg "github.com/robert-malhotra/go-dm4/internal/binary"
)

// dataDelimiter precedes every leaf payload.
var dataDelimiter = []byte("%%%%")

// Entries whose name matches this pattern and whose value decodes to a
// non-empty integer array are coerced to text on read. Some producers
// mis-encode name-like strings as arrays of character codes; there is no
// schema to distinguish a genuine code array under such a name, so this is a
// compatibility heuristic, not a guarantee.
var nameLikePattern = regexp.MustCompile(`.*Name`)

// Read decodes a complete tag file: header, root group and trailer. The
// version is returned so callers can round-trip files at their original
// width.
func Read(r io.ReaderAt) (*Group, Version, error) {
	br := binpkg.NewReader(r, binpkg.Config{SizeWidth: 4})
	ver, err := br.ReadInt32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading version tag: %v", ErrMalformedHeader, err)
	}
	version := Version(ver)
	if !version.Valid() {
		return nil, 0, fmt.Errorf("%w: version must be 3 or 4, not %d", ErrMalformedHeader, ver)
	}
	br = br.WithSizeWidth(version.SizeWidth())

	// The stored file size is known to be unreliable; consume and ignore it.
	if _, err := br.ReadSize(); err != nil {
		return nil, 0, fmt.Errorf("%w: reading file size: %v", ErrMalformedHeader, err)
	}
	endianness, err := br.ReadInt32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading endianness flag: %v", ErrMalformedHeader, err)
	}
	if endianness != 1 {
		return nil, 0, fmt.Errorf("%w: endianness must be 1, not %d", ErrUnsupportedEndianness, endianness)
	}

	root, err := readGroup(br)
	if err != nil {
		return nil, 0, err
	}

	enda, err := br.ReadInt32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading trailer: %v", ErrMalformedHeader, err)
	}
	endb, err := br.ReadInt32()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading trailer: %v", ErrMalformedHeader, err)
	}
	if enda != 0 || endb != 0 {
		return nil, 0, fmt.Errorf("%w: trailer must be zero, got (%d, %d)", ErrMalformedHeader, enda, endb)
	}
	return root, version, nil
}

func readGroup(br *binpkg.Reader) (*Group, error) {
	isDict, err := br.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: reading group flags: %v", ErrCorruptTagStructure, err)
	}
	if _, err := br.ReadUint8(); err != nil { // reserved byte
		return nil, fmt.Errorf("%w: reading group flags: %v", ErrCorruptTagStructure, err)
	}
	count, err := br.ReadSize()
	if err != nil {
		return nil, fmt.Errorf("%w: reading entry count: %v", ErrCorruptTagStructure, err)
	}
	g := &Group{Dict: isDict != 0}
	if count > 0 {
		hint := count
		if hint > 4096 {
			hint = 4096
		}
		g.Entries = make([]Entry, 0, hint)
	}
	for i := uint64(0); i < count; i++ {
		entry, err := readEntry(br)
		if err != nil {
			return nil, err
		}
		if g.Dict && !entry.Named {
			return nil, fmt.Errorf("%w: unnamed entry in tag group", ErrCorruptTagStructure)
		}
		if !g.Dict && entry.Named {
			return nil, fmt.Errorf("%w: named entry %q in tag list", ErrCorruptTagStructure, entry.Name)
		}
		g.Entries = append(g.Entries, entry)
	}
	return g, nil
}

func readEntry(br *binpkg.Reader) (Entry, error) {
	kind, err := br.ReadUint8()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: reading entry kind: %v", ErrCorruptTagStructure, err)
	}
	nameLen, err := br.ReadUint16()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: reading entry name length: %v", ErrCorruptTagStructure, err)
	}
	entry := Entry{}
	if nameLen > 0 {
		raw, err := br.ReadBytes(int(nameLen))
		if err != nil {
			return Entry{}, fmt.Errorf("%w: reading entry name: %v", ErrCorruptTagStructure, err)
		}
		name, err := decodeName(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: decoding entry name: %v", ErrCorruptTagStructure, err)
		}
		entry.Name = name
		entry.Named = true
	}
	if br.SizeWidth() == 8 {
		// V4 carries a per-entry byte length; the tree is self-describing so
		// it is not needed for sequential decoding.
		if _, err := br.ReadSize(); err != nil {
			return Entry{}, fmt.Errorf("%w: reading entry length: %v", ErrCorruptTagStructure, err)
		}
	}
	switch kind {
	case kindData:
		node, err := readData(br)
		if err != nil {
			return Entry{}, err
		}
		entry.Value = coerceNameValue(entry, node)
	case kindGroup:
		node, err := readGroup(br)
		if err != nil {
			return Entry{}, err
		}
		entry.Value = node
	default:
		return Entry{}, fmt.Errorf("%w: unknown entry kind %d", ErrCorruptTagStructure, kind)
	}
	return entry, nil
}

// coerceNameValue applies the array-to-text compatibility shim for
// name-suffixed entries.
func coerceNameValue(entry Entry, node Node) Node {
	if !entry.Named || !nameLikePattern.MatchString(entry.Name) {
		return node
	}
	arr, ok := node.(*Array)
	if !ok || arr.Count() == 0 || !arr.ElemType.IsInteger() {
		return node
	}
	runes := make([]rune, 0, arr.Count())
	for _, v := range arr.IntValues() {
		runes = append(runes, rune(v))
	}
	return String{Text: string(runes)}
}

// IntValues decodes the raw buffer as signed integers, one per element.
// Returns nil for non-integer element types.
func (a *Array) IntValues() []int64 {
	size := a.ElemType.Size()
	if size == 0 {
		return nil
	}
	out := make([]int64, 0, a.Count())
	for off := 0; off+size <= len(a.Raw); off += size {
		var v int64
		switch a.ElemType {
		case TypeChar, TypeOctet, TypeBool:
			v = int64(int8(a.Raw[off]))
		case TypeShort:
			v = int64(int16(uint16(a.Raw[off]) | uint16(a.Raw[off+1])<<8))
		case TypeUShort:
			v = int64(uint16(a.Raw[off]) | uint16(a.Raw[off+1])<<8)
		case TypeLong:
			v = int64(int32(leUint32(a.Raw[off:])))
		case TypeUInt:
			v = int64(leUint32(a.Raw[off:]))
		case TypeInt64, TypeUInt64:
			v = int64(leUint64(a.Raw[off:]))
		default:
			return nil
		}
		out = append(out, v)
	}
	return out
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leUint64(b []byte) uint64 {
	return uint64(leUint32(b)) | uint64(leUint32(b[4:]))<<32
}

func readData(br *binpkg.Reader) (Node, error) {
	delim, err := br.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("%w: reading data delimiter: %v", ErrCorruptTagStructure, err)
	}
	if string(delim) != string(dataDelimiter) {
		return nil, fmt.Errorf("%w: bad data delimiter %q", ErrCorruptTagStructure, delim)
	}
	headerLen, err := br.ReadSize()
	if err != nil {
		return nil, fmt.Errorf("%w: reading data header length: %v", ErrCorruptTagStructure, err)
	}
	typeID, err := br.ReadSize()
	if err != nil {
		return nil, fmt.Errorf("%w: reading data type id: %v", ErrCorruptTagStructure, err)
	}
	node, words, err := readValue(br, TagType(typeID))
	if err != nil {
		return nil, err
	}
	if words+1 != headerLen {
		return nil, fmt.Errorf("%w: data header length %d does not match %d sub-header words",
			ErrCorruptTagStructure, headerLen, words)
	}
	return node, nil
}

// readValue decodes one typed payload and returns the node plus the number
// of size-width sub-header words it consumed (the read-side twin of each
// writer's sub-header count).
func readValue(br *binpkg.Reader, t TagType) (Node, uint64, error) {
	switch {
	case t.IsScalar():
		s, err := readScalar(br, t)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading %s value: %v", ErrCorruptTagStructure, t, err)
		}
		return s, 0, nil
	case t == TypeString:
		length, err := br.ReadSize()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading string length: %v", ErrCorruptTagStructure, err)
		}
		raw, err := readCounted(br, length, 1)
		if err != nil {
			return nil, 0, err
		}
		text, err := utf16Codec.NewDecoder().String(string(raw))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: decoding string: %v", ErrCorruptTagStructure, err)
		}
		return String{Text: text}, 1, nil
	case t == TypeStruct:
		fieldTypes, words, err := readStructTypes(br)
		if err != nil {
			return nil, 0, err
		}
		// A nil slice here keeps zero-field structs equal to their
		// written form.
		var fields []Scalar
		for _, ft := range fieldTypes {
			if !ft.IsScalar() {
				return nil, 0, fmt.Errorf("%w: struct field of type %s", ErrCorruptTagStructure, ft)
			}
			s, err := readScalar(br, ft)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: reading struct field: %v", ErrCorruptTagStructure, err)
			}
			fields = append(fields, s)
		}
		return &StructValue{Fields: fields}, words, nil
	case t == TypeArray:
		return readArray(br)
	default:
		return nil, 0, fmt.Errorf("%w: unknown tag type %s", ErrCorruptTagStructure, t)
	}
}

func readArray(br *binpkg.Reader) (Node, uint64, error) {
	elemID, err := br.ReadSize()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading array element type: %v", ErrCorruptTagStructure, err)
	}
	elem := TagType(elemID)
	if elem == TypeStruct {
		fieldTypes, words, err := readStructTypes(br)
		if err != nil {
			return nil, 0, err
		}
		sa := &StructArray{FieldTypes: fieldTypes}
		elemSize := sa.ElementSize()
		if elemSize == 0 {
			return nil, 0, fmt.Errorf("%w: struct array with empty element", ErrCorruptTagStructure)
		}
		count, err := br.ReadSize()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading array length: %v", ErrCorruptTagStructure, err)
		}
		sa.Raw, err = readCounted(br, count, elemSize)
		if err != nil {
			return nil, 0, err
		}
		return sa, 2 + words, nil
	}
	if !elem.IsScalar() {
		return nil, 0, fmt.Errorf("%w: array of %s", ErrCorruptTagStructure, elem)
	}
	count, err := br.ReadSize()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading array length: %v", ErrCorruptTagStructure, err)
	}
	raw, err := readCounted(br, count, elem.Size())
	if err != nil {
		return nil, 0, err
	}
	return &Array{ElemType: elem, Raw: raw}, 2, nil
}

func readStructTypes(br *binpkg.Reader) ([]TagType, uint64, error) {
	zero, err := br.ReadSize()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading struct header: %v", ErrCorruptTagStructure, err)
	}
	if zero != 0 {
		return nil, 0, fmt.Errorf("%w: struct length field must be zero, got %d", ErrCorruptTagStructure, zero)
	}
	nfields, err := br.ReadSize()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading struct field count: %v", ErrCorruptTagStructure, err)
	}
	if nfields > math.MaxUint16 {
		return nil, 0, fmt.Errorf("%w: implausible struct field count %d", ErrCorruptTagStructure, nfields)
	}
	types := make([]TagType, 0, nfields)
	for i := uint64(0); i < nfields; i++ {
		zero, err := br.ReadSize()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading struct field header: %v", ErrCorruptTagStructure, err)
		}
		if zero != 0 {
			return nil, 0, fmt.Errorf("%w: struct field length must be zero, got %d", ErrCorruptTagStructure, zero)
		}
		ft, err := br.ReadSize()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: reading struct field type: %v", ErrCorruptTagStructure, err)
		}
		if TagType(ft) == TypeStruct {
			return nil, 0, ErrUnsupportedNesting
		}
		types = append(types, TagType(ft))
	}
	return types, 2 + 2*nfields, nil
}

// readCounted reads count*elemSize bytes, guarding against corrupt counts
// that would overflow or exhaust memory before the read fails naturally.
func readCounted(br *binpkg.Reader, count uint64, elemSize int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	if count > math.MaxInt64/uint64(elemSize) {
		return nil, fmt.Errorf("%w: implausible element count %d", ErrCorruptTagStructure, count)
	}
	total := count * uint64(elemSize)
	if total > 1<<40 {
		return nil, fmt.Errorf("%w: implausible element data size %d", ErrCorruptTagStructure, total)
	}
	raw, err := br.ReadBytes(int(total))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes of element data: %v", ErrCorruptTagStructure, total, err)
	}
	return raw, nil
}
