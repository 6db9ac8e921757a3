package dm

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// bytesWriterAt implements io.WriterAt for testing
type bytesWriterAt struct {
	buf []byte
}

func (b *bytesWriterAt) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if int(off)+len(p) > len(b.buf) {
		newBuf := make([]byte, int(off)+len(p))
		copy(newBuf, b.buf)
		b.buf = newBuf
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

// writeSeekBuffer implements io.WriteSeeker over a byte slice.
type writeSeekBuffer struct {
	buf []byte
	pos int64
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if int(b.pos)+len(p) > len(b.buf) {
		newBuf := make([]byte, int(b.pos)+len(p))
		copy(newBuf, b.buf)
		b.buf = newBuf
	}
	copy(b.buf[b.pos:], p)
	b.pos += int64(len(p))
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.buf)) + offset
	}
	return b.pos, nil
}

func testBuffer(kind DType, shape ...int) ImageData {
	d := ImageData{Kind: kind, Shape: shape}
	n := d.Count() * kind.ItemSize()
	d.Raw = make([]byte, n)
	for i := range d.Raw {
		d.Raw[i] = byte(i*31 + 7)
	}
	return d
}

func saveLoad(t *testing.T, rec *ImageRecord, version Version) *ImageRecord {
	t.Helper()
	buf := &bytesWriterAt{}
	if err := Save(buf, rec, version); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(bytes.NewReader(buf.buf))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return got
}

func testCalibrations(n int) []Calibration {
	units := []string{"nm", "eV", "um", "rad"}
	out := make([]Calibration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Calibration{
			Offset: 1.25 * float64(i+1),
			Scale:  0.5 * float64(i+1),
			Units:  units[i%len(units)],
		})
	}
	return out
}

func TestRoundTripDescriptors(t *testing.T) {
	kinds := []DType{Int8, Int16, Uint16, Int32, Uint32, Float32, Float64, Complex64, Complex128}
	tests := []struct {
		name       string
		shape      []int
		descriptor DataDescriptor
		wantMeta   map[string]any
	}{
		{
			name: "spectrum", shape: []int{16},
			descriptor: DataDescriptor{DatumDimensionCount: 1},
			wantMeta: map[string]any{
				"Meta Data": map[string]any{"Format": "Spectrum"},
			},
		},
		{
			name: "collection of spectra", shape: []int{8, 16},
			descriptor: DataDescriptor{CollectionDimensionCount: 1, DatumDimensionCount: 1},
			wantMeta: map[string]any{
				"hardware_source": map[string]any{"signal_type": "EELS"},
				"Meta Data":       map[string]any{"Format": "Spectrum image", "Signal": "EELS"},
			},
		},
		{
			name: "sequence of spectra", shape: []int{4, 16},
			descriptor: DataDescriptor{IsSequence: true, DatumDimensionCount: 1},
			wantMeta: map[string]any{
				"hardware_source": map[string]any{"signal_type": "EELS"},
				"Meta Data":       map[string]any{"Format": "Spectrum image", "Signal": "EELS", "IsSequence": true},
			},
		},
		{
			name: "spectrum image", shape: []int{6, 5, 16},
			descriptor: DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 1},
			wantMeta: map[string]any{
				"hardware_source": map[string]any{"signal_type": "EELS"},
				"Meta Data":       map[string]any{"Format": "Spectrum image", "Signal": "EELS"},
			},
		},
		{
			name: "image", shape: []int{12, 10},
			descriptor: DataDescriptor{DatumDimensionCount: 2},
			wantMeta:   map[string]any{},
		},
		{
			name: "collection of images", shape: []int{4, 12, 10},
			descriptor: DataDescriptor{CollectionDimensionCount: 1, DatumDimensionCount: 2},
			wantMeta:   map[string]any{},
		},
		{
			name: "sequence of images", shape: []int{4, 12, 10},
			descriptor: DataDescriptor{IsSequence: true, DatumDimensionCount: 2},
			wantMeta: map[string]any{
				"Meta Data": map[string]any{"IsSequence": true},
			},
		},
		{
			name: "2d collection of images", shape: []int{3, 4, 12, 10},
			descriptor: DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 2},
			wantMeta:   map[string]any{},
		},
	}

	for _, version := range []Version{V3, V4} {
		for _, tt := range tests {
			for _, kind := range kinds {
				rec := &ImageRecord{
					Data:         testBuffer(kind, tt.shape...),
					Descriptor:   tt.descriptor,
					Calibrations: testCalibrations(len(tt.shape)),
					Intensity:    Calibration{Offset: 3, Scale: 2, Units: "counts"},
					Metadata:     map[string]any{},
				}
				got := saveLoad(t, rec, version)

				if !reflect.DeepEqual(got.Data, rec.Data) {
					t.Errorf("%s %s v%d: data mismatch: got %v %s, want %v %s",
						tt.name, kind, version, got.Data.Shape, got.Data.Kind, rec.Data.Shape, rec.Data.Kind)
					continue
				}
				if got.Descriptor != rec.Descriptor {
					t.Errorf("%s %s v%d: descriptor %+v, want %+v", tt.name, kind, version, got.Descriptor, rec.Descriptor)
				}
				if !reflect.DeepEqual(got.Calibrations, rec.Calibrations) {
					t.Errorf("%s %s v%d: calibrations %+v, want %+v", tt.name, kind, version, got.Calibrations, rec.Calibrations)
				}
				if got.Intensity != rec.Intensity {
					t.Errorf("%s %s v%d: intensity %+v, want %+v", tt.name, kind, version, got.Intensity, rec.Intensity)
				}
				if !reflect.DeepEqual(got.Metadata, tt.wantMeta) {
					t.Errorf("%s %s v%d: metadata %#v, want %#v", tt.name, kind, version, got.Metadata, tt.wantMeta)
				}
			}
		}
	}
}

func TestSaveToWriteSeeker(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Int32, 6, 5, 16),
		Descriptor: DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 1},
		Intensity:  defaultCalibration(),
	}
	ws := &writeSeekBuffer{}
	if err := Save(NewSeekableWriterAt(ws), rec, V4); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(bytes.NewReader(ws.buf))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Data, rec.Data) {
		t.Errorf("data mismatch: got %v %s, want %v %s",
			got.Data.Shape, got.Data.Kind, rec.Data.Shape, rec.Data.Kind)
	}
	if got.Descriptor != rec.Descriptor {
		t.Errorf("descriptor %+v, want %+v", got.Descriptor, rec.Descriptor)
	}
}

func TestRoundTripRGB(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Uint8, 4, 5, 3),
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
		Intensity:  defaultCalibration(),
		Metadata:   map[string]any{},
	}
	got := saveLoad(t, rec, V3)
	if !reflect.DeepEqual(got.Data, rec.Data) {
		t.Errorf("data mismatch: got shape %v, want %v", got.Data.Shape, rec.Data.Shape)
	}
	if got.Descriptor != rec.Descriptor {
		t.Errorf("descriptor %+v, want %+v", got.Descriptor, rec.Descriptor)
	}
	want := []Calibration{defaultCalibration(), defaultCalibration()}
	if !reflect.DeepEqual(got.Calibrations, want) {
		t.Errorf("calibrations %+v, want defaults", got.Calibrations)
	}
}

func TestRoundTripRGBAKeepsAlpha(t *testing.T) {
	data := testBuffer(Uint8, 4, 5, 4)
	data.Raw[3] = 128 // meaningful alpha
	rec := &ImageRecord{
		Data:       data,
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
		Intensity:  defaultCalibration(),
	}
	got := saveLoad(t, rec, V4)
	if !reflect.DeepEqual(got.Data, rec.Data) {
		t.Errorf("data mismatch: got shape %v, want %v", got.Data.Shape, rec.Data.Shape)
	}
}

func TestRoundTripRGBAOpaqueAlphaDropped(t *testing.T) {
	data := testBuffer(Uint8, 2, 2, 4)
	for i := 3; i < len(data.Raw); i += 4 {
		data.Raw[i] = 255
	}
	rec := &ImageRecord{
		Data:       data,
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
		Intensity:  defaultCalibration(),
	}
	got := saveLoad(t, rec, V3)
	if want := []int{2, 2, 3}; !reflect.DeepEqual(got.Data.Shape, want) {
		t.Fatalf("shape %v, want %v", got.Data.Shape, want)
	}
	for p := 0; p < 4; p++ {
		for c := 0; c < 3; c++ {
			if got.Data.Raw[p*3+c] != data.Raw[p*4+c] {
				t.Fatalf("pixel %d channel %d: %d, want %d", p, c, got.Data.Raw[p*3+c], data.Raw[p*4+c])
			}
		}
	}
}

func TestRoundTripMetadataValues(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Float32, 12, 10),
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
		Intensity:  defaultCalibration(),
		Metadata: map[string]any{
			"abc":   nil,
			"":      "",
			"one":   []any{},
			"two":   map[string]any{},
			"three": []any{1, nil, 2},
			"big":   int64(999999999999),
			"pi":    3.25,
			"flag":  true,
			"label": "début",
			"rect":  Tuple{Tuple{int64(1), int64(2)}, Tuple{int64(3), int64(4)}},
		},
	}
	got := saveLoad(t, rec, V4)
	want := map[string]any{
		"one":   []any{},
		"two":   map[string]any{},
		"three": []any{int64(1), int64(2)},
		"big":   int64(999999999999),
		"pi":    3.25,
		"flag":  true,
		"label": "début",
		"rect":  Tuple{Tuple{int64(1), int64(2)}, Tuple{int64(3), int64(4)}},
	}
	if !reflect.DeepEqual(got.Metadata, want) {
		t.Errorf("metadata %#v\nwant %#v", got.Metadata, want)
	}
}

func TestRoundTripEELSSpectrum(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Float32, 16),
		Descriptor: DataDescriptor{DatumDimensionCount: 1},
		Intensity:  defaultCalibration(),
		Metadata: map[string]any{
			"hardware_source": map[string]any{"signal_type": "eels"},
		},
	}
	got := saveLoad(t, rec, V3)
	want := map[string]any{
		// The stored metadata copy wins over the hoisted signal type.
		"hardware_source": map[string]any{"signal_type": "eels"},
		"Meta Data":       map[string]any{"Format": "Spectrum", "Signal": "EELS"},
	}
	if !reflect.DeepEqual(got.Metadata, want) {
		t.Errorf("metadata %#v\nwant %#v", got.Metadata, want)
	}
}

func TestRoundTripHighTension(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Uint16, 6, 6),
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
		Intensity:  defaultCalibration(),
		Metadata: map[string]any{
			"ImageScanned": map[string]any{"EHT": 140000.0},
		},
	}
	got := saveLoad(t, rec, V3)
	want := map[string]any{
		"hardware_source": map[string]any{
			"autostem": map[string]any{"high_tension": 140000.0},
		},
		"ImageScanned": map[string]any{"EHT": 140000.0},
	}
	if !reflect.DeepEqual(got.Metadata, want) {
		t.Errorf("metadata %#v\nwant %#v", got.Metadata, want)
	}
}

func TestRoundTripTimestamp(t *testing.T) {
	ts := time.Date(2015, 6, 1, 12, 30, 45, 123456000, time.UTC)
	rec := &ImageRecord{
		Data:           testBuffer(Int16, 4, 4),
		Descriptor:     DataDescriptor{DatumDimensionCount: 2},
		Intensity:      defaultCalibration(),
		Timestamp:      ts,
		Timezone:       "Europe/Amsterdam",
		TimezoneOffset: "+0100",
	}
	got := saveLoad(t, rec, V4)
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp %v, want %v", got.Timestamp, ts)
	}
	if got.Timezone != rec.Timezone || got.TimezoneOffset != rec.TimezoneOffset {
		t.Errorf("timezone %q/%q, want %q/%q",
			got.Timezone, got.TimezoneOffset, rec.Timezone, rec.TimezoneOffset)
	}
	// The hoisted tags must not remain in the metadata tree.
	for _, k := range []string{"Timestamp", "Timezone", "TimezoneOffset"} {
		if _, dup := got.Metadata[k]; dup {
			t.Errorf("%s left in metadata", k)
		}
	}
}

func TestScaffoldTags(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Float32, 6, 5, 16),
		Descriptor: DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 1},
		Intensity:  defaultCalibration(),
		Timestamp:  time.Date(2015, 6, 1, 12, 30, 45, 0, time.UTC),
	}
	buf := &bytesWriterAt{}
	if err := Save(buf, rec, V3); err != nil {
		t.Fatalf("Save: %v", err)
	}
	root, _, err := tagfile.Read(bytes.NewReader(buf.buf))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	sources := root.Child("ImageSourceList")
	if sources == nil || len(sources.Entries) != 1 {
		t.Fatal("missing ImageSourceList")
	}
	source := sources.Entries[0].Value.(*tagfile.Group)
	if name, _ := source.Text("ClassName"); name != "ImageSource:Summed" {
		t.Errorf("ClassName %q, want ImageSource:Summed", name)
	}
	if doSum, _ := source.Bool("Do Sum"); !doSum {
		t.Error("Do Sum not set")
	}
	if dim, _ := source.Int("Summed Dimension"); dim != 2 {
		t.Errorf("Summed Dimension %d, want 2", dim)
	}

	objects := root.Child("DocumentObjectList")
	if objects == nil || len(objects.Entries) != 1 {
		t.Fatal("missing DocumentObjectList")
	}
	object := objects.Entries[0].Value.(*tagfile.Group)
	if at, _ := object.Int("AnnotationType"); at != 20 {
		t.Errorf("AnnotationType %d, want 20", at)
	}
	groups := object.Child("AnnotationGroupList")
	if groups == nil || len(groups.Entries) != 1 {
		t.Fatal("missing AnnotationGroupList")
	}
	annotation := groups.Entries[0].Value.(*tagfile.Group)
	if name, _ := annotation.Text("Name"); name != "SICursor" {
		t.Errorf("annotation Name %q, want SICursor", name)
	}
	if _, ok := annotation.Get("Rectangle"); !ok {
		t.Error("missing annotation Rectangle")
	}

	if id, _ := root.Child("Image Behavior").Int("ViewDisplayID"); id != 8 {
		t.Errorf("ViewDisplayID %d, want 8", id)
	}
	if mode, _ := root.Bool("InImageMode"); !mode {
		t.Error("InImageMode not set")
	}
	bar := root.Child("DataBar")
	if date, _ := bar.Text("Acquisition Date"); date != "06/01/15" {
		t.Errorf("Acquisition Date %q, want 06/01/15", date)
	}
	if clock, _ := bar.Text("Acquisition Time"); clock != "12:30:45" {
		t.Errorf("Acquisition Time %q, want 12:30:45", clock)
	}
}

func TestSaveRejectsBareByteImage(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Uint8, 16),
		Descriptor: DataDescriptor{DatumDimensionCount: 1},
	}
	buf := &bytesWriterAt{}
	if err := Save(buf, rec, V3); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSaveRejectsInt64Image(t *testing.T) {
	rec := &ImageRecord{
		Data:       testBuffer(Int64, 4, 4),
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
	}
	buf := &bytesWriterAt{}
	if err := Save(buf, rec, V3); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSaveRejectsShapeMismatch(t *testing.T) {
	rec := &ImageRecord{
		Data:       ImageData{Kind: Float32, Shape: []int{4, 4}, Raw: make([]byte, 10)},
		Descriptor: DataDescriptor{DatumDimensionCount: 2},
	}
	buf := &bytesWriterAt{}
	if err := Save(buf, rec, V3); !errors.Is(err, ErrCorruptImageData) {
		t.Errorf("expected ErrCorruptImageData, got %v", err)
	}
}

func imageTree(imageData *tagfile.Group) *tagfile.Group {
	image := tagfile.NewDictGroup()
	image.Set("ImageData", imageData)
	list := tagfile.NewListGroup()
	list.Append(image)
	root := tagfile.NewDictGroup()
	root.Set("ImageList", list)
	return root
}

func TestAssembleRejectsPixelTypeMismatch(t *testing.T) {
	imageData := tagfile.NewDictGroup()
	imageData.Set("Data", &tagfile.Array{ElemType: tagfile.TypeFloat, Raw: make([]byte, 16)})
	imageData.Set("DataType", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(1)}) // declares int16
	imageData.Set("PixelDepth", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(4)})
	dims := tagfile.NewListGroup()
	dims.Append(tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(4)})
	imageData.Set("Dimensions", dims)

	if _, err := assembleRecord(imageTree(imageData)); !errors.Is(err, ErrCorruptImageData) {
		t.Errorf("expected ErrCorruptImageData, got %v", err)
	}
}

func TestAssembleRejectsDimensionMismatch(t *testing.T) {
	imageData := tagfile.NewDictGroup()
	imageData.Set("Data", &tagfile.Array{ElemType: tagfile.TypeFloat, Raw: make([]byte, 16)})
	imageData.Set("DataType", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(2)})
	imageData.Set("PixelDepth", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(4)})
	dims := tagfile.NewListGroup()
	dims.Append(tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(5)}) // 5 floats > 16 bytes
	imageData.Set("Dimensions", dims)

	if _, err := assembleRecord(imageTree(imageData)); !errors.Is(err, ErrCorruptImageData) {
		t.Errorf("expected ErrCorruptImageData, got %v", err)
	}
}

func TestAssembleRejectsMissingImageList(t *testing.T) {
	if _, err := assembleRecord(tagfile.NewDictGroup()); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
}
