package tagfile

import (
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-dm4/internal/binary"
)

// Write encodes a complete tag file: header, root group and trailer. The
// file size field is backpatched once the tree has been written.
func Write(w io.WriterAt, root *Group, version Version) error {
	if !version.Valid() {
		return fmt.Errorf("%w: format version %d", ErrUnsupportedType, version)
	}
	bw := binpkg.NewWriter(w, binpkg.Config{SizeWidth: version.SizeWidth()})
	if err := bw.WriteInt32(int32(version)); err != nil {
		return err
	}
	sizeOff, err := bw.ReserveSize()
	if err != nil {
		return err
	}
	if err := bw.WriteInt32(1); err != nil { // little-endian data flag
		return err
	}
	start := bw.Pos()
	if err := writeGroup(bw, root); err != nil {
		return err
	}
	end := bw.Pos()
	if err := bw.PatchSize(sizeOff, uint64(end-start+4)); err != nil {
		return err
	}
	if err := bw.WriteInt32(0); err != nil {
		return err
	}
	return bw.WriteInt32(0)
}

// writable reports whether an entry is emitted: nil values are skipped, and
// dict groups additionally skip entries with empty keys.
func writable(e Entry, dict bool) bool {
	if e.Value == nil {
		return false
	}
	if dict && (!e.Named || e.Name == "") {
		return false
	}
	return true
}

func writeGroup(bw *binpkg.Writer, g *Group) error {
	var flag uint8
	if g.Dict {
		flag = 1
	}
	if err := bw.WriteUint8(flag); err != nil {
		return err
	}
	if err := bw.WriteUint8(0); err != nil { // reserved byte
		return err
	}
	count := uint64(0)
	for _, e := range g.Entries {
		if writable(e, g.Dict) {
			count++
		}
	}
	if err := bw.WriteSize(count); err != nil {
		return err
	}
	for _, e := range g.Entries {
		if !writable(e, g.Dict) {
			continue
		}
		if err := writeEntry(bw, e, g.Dict); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(bw *binpkg.Writer, e Entry, dict bool) error {
	kind := kindData
	if _, isGroup := e.Value.(*Group); isGroup {
		kind = kindGroup
	}
	var name []byte
	if dict {
		var err error
		if name, err = encodeName(e.Name); err != nil {
			return err
		}
	}
	if err := bw.WriteUint8(kind); err != nil {
		return err
	}
	if err := bw.WriteUint16(uint16(len(name))); err != nil {
		return err
	}
	if err := bw.WriteBytes(name); err != nil {
		return err
	}

	// V4 entries carry their body length, backpatched after the body.
	var lenOff int64
	if bw.SizeWidth() == 8 {
		var err error
		if lenOff, err = bw.ReserveSize(); err != nil {
			return err
		}
	}

	var err error
	if kind == kindGroup {
		err = writeGroup(bw, e.Value.(*Group))
	} else {
		err = writeData(bw, e.Value)
	}
	if err != nil {
		return err
	}

	if bw.SizeWidth() == 8 {
		body := bw.Pos() - (lenOff + int64(bw.SizeWidth()))
		if err := bw.PatchSize(lenOff, uint64(body)); err != nil {
			return err
		}
	}
	return nil
}

func writeData(bw *binpkg.Writer, node Node) error {
	var typeID TagType
	switch v := node.(type) {
	case Scalar:
		typeID = v.Type
	case String, *Array, *StructArray:
		// Text is written using the string-as-array convention.
		typeID = TypeArray
	case *StructValue:
		typeID = TypeStruct
	default:
		return fmt.Errorf("%w: cannot encode %T as tag data", ErrUnsupportedType, node)
	}
	if err := bw.WriteBytes(dataDelimiter); err != nil {
		return err
	}
	hdrOff, err := bw.ReserveSize()
	if err != nil {
		return err
	}
	if err := bw.WriteSize(uint64(typeID)); err != nil {
		return err
	}
	words, err := writeValue(bw, node)
	if err != nil {
		return err
	}
	return bw.PatchSize(hdrOff, words+1)
}

// writeValue emits one typed payload and returns the number of size-width
// sub-header words it wrote. Read and write counts must agree exactly or the
// backpatched header length corrupts every following offset.
func writeValue(bw *binpkg.Writer, node Node) (uint64, error) {
	switch v := node.(type) {
	case Scalar:
		if !v.Type.IsScalar() {
			return 0, fmt.Errorf("%w: %s is not a scalar type", ErrUnsupportedType, v.Type)
		}
		return 0, writeScalar(bw, v)
	case String:
		arr, err := NewTextArray(v.Text)
		if err != nil {
			return 0, err
		}
		return writeArray(bw, arr)
	case *Array:
		return writeArray(bw, v)
	case *StructArray:
		return writeStructArray(bw, v)
	case *StructValue:
		return writeStruct(bw, v)
	default:
		return 0, fmt.Errorf("%w: cannot encode %T as tag data", ErrUnsupportedType, node)
	}
}

func writeArray(bw *binpkg.Writer, a *Array) (uint64, error) {
	size := a.ElemType.Size()
	if size == 0 {
		return 0, fmt.Errorf("%w: array of %s", ErrUnsupportedType, a.ElemType)
	}
	if len(a.Raw)%size != 0 {
		return 0, fmt.Errorf("%w: %d raw bytes is not a multiple of %s width",
			ErrCorruptTagStructure, len(a.Raw), a.ElemType)
	}
	if err := bw.WriteSize(uint64(a.ElemType)); err != nil {
		return 0, err
	}
	if err := bw.WriteSize(uint64(len(a.Raw) / size)); err != nil {
		return 0, err
	}
	if err := writeArrayData(bw, a.Raw, a.Shape, size); err != nil {
		return 0, err
	}
	return 2, nil
}

func writeStructArray(bw *binpkg.Writer, a *StructArray) (uint64, error) {
	elemSize := a.ElementSize()
	if elemSize == 0 {
		return 0, fmt.Errorf("%w: struct array with empty element", ErrUnsupportedType)
	}
	if len(a.Raw)%elemSize != 0 {
		return 0, fmt.Errorf("%w: %d raw bytes is not a multiple of element width %d",
			ErrCorruptTagStructure, len(a.Raw), elemSize)
	}
	if err := bw.WriteSize(uint64(TypeStruct)); err != nil {
		return 0, err
	}
	words, err := writeStructTypes(bw, a.FieldTypes)
	if err != nil {
		return 0, err
	}
	if err := bw.WriteSize(uint64(len(a.Raw) / elemSize)); err != nil {
		return 0, err
	}
	if err := bw.WriteBytes(a.Raw); err != nil {
		return 0, err
	}
	return 2 + words, nil
}

func writeStruct(bw *binpkg.Writer, s *StructValue) (uint64, error) {
	types := make([]TagType, len(s.Fields))
	for i, f := range s.Fields {
		types[i] = f.Type
	}
	words, err := writeStructTypes(bw, types)
	if err != nil {
		return 0, err
	}
	for _, f := range s.Fields {
		if err := writeScalar(bw, f); err != nil {
			return 0, err
		}
	}
	return words, nil
}

func writeStructTypes(bw *binpkg.Writer, types []TagType) (uint64, error) {
	if err := bw.WriteSize(0); err != nil {
		return 0, err
	}
	if err := bw.WriteSize(uint64(len(types))); err != nil {
		return 0, err
	}
	for _, t := range types {
		if t == TypeStruct {
			return 0, ErrUnsupportedNesting
		}
		if !t.IsScalar() {
			return 0, fmt.Errorf("%w: struct field of type %s", ErrUnsupportedType, t)
		}
		if err := bw.WriteSize(0); err != nil {
			return 0, err
		}
		if err := bw.WriteSize(uint64(t)); err != nil {
			return 0, err
		}
	}
	return uint64(2 + 2*len(types)), nil
}
