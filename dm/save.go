package dm

import (
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// buildTagTree converts a record to the tag tree layout viewers expect: an
// image list plus the source-list, document-object and display scaffolding
// without which the file opens blank. Spectral data is reordered so the
// spectral axis is stored first.
func buildTagTree(rec *ImageRecord) (*tagfile.Group, error) {
	data := rec.Data
	if err := data.validate(); err != nil {
		return nil, err
	}
	descriptor := rec.Descriptor
	calibrations := append([]Calibration(nil), rec.Calibrations...)
	needsSlice := false
	wasSequence := false

	if data.Rank() == 3 && data.Kind != Uint8 && descriptor.DatumDimensionCount == 1 {
		data = moveAxis(data, 2, 0)
		calibrations = []Calibration{index(calibrations, 2), index(calibrations, 0), index(calibrations, 1)}
	}
	if data.Rank() == 2 && data.Kind != Uint8 && descriptor.DatumDimensionCount == 1 {
		// A 1d collection of spectra is stored as a degenerate single-row
		// spectrum image so viewers treat it as one.
		wasSequence = descriptor.IsSequence
		data = expandDims(moveAxis(data, 1, 0), 1)
		calibrations = []Calibration{index(calibrations, 1), defaultCalibration(), index(calibrations, 0)}
		descriptor = DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 1}
		needsSlice = true
	}

	imageData, err := imageDataNodes(data)
	if err != nil {
		return nil, err
	}
	if err := attachCalibrations(imageData, data, calibrations, rec.Intensity); err != nil {
		return nil, err
	}

	dmMetadata := map[string]any{}
	if rec.Metadata != nil {
		dmMetadata = cloneValue(rec.Metadata).(map[string]any)
	}

	if signalType(rec.Metadata) == "eels" &&
		(data.Rank() == 1 || (data.Rank() == 2 && data.Shape[0] == 1)) {
		md := ensureChild(dmMetadata, "Meta Data")
		md["Format"] = "Spectrum"
		md["Signal"] = "EELS"
	} else if descriptor.CollectionDimensionCount == 2 && descriptor.DatumDimensionCount == 1 {
		md := ensureChild(dmMetadata, "Meta Data")
		md["Format"] = "Spectrum image"
		md["Signal"] = "EELS"
		needsSlice = true
	}
	if descriptor.DatumDimensionCount == 1 {
		// 1d data is always marked as a spectrum.
		format := "Spectrum"
		if descriptor.CollectionDimensionCount == 2 {
			format = "Spectrum image"
		}
		ensureChild(dmMetadata, "Meta Data")["Format"] = format
	}

	root := map[string]any{
		"ImageSourceList": []any{map[string]any{
			"ClassName": "ImageSource:Simple", "Id": []any{0}, "ImageRef": 0,
		}},
		"Image Behavior": map[string]any{"ViewDisplayID": 8},
		"InImageMode":    true,
	}
	documentObject := map[string]any{"ImageSource": 0, "AnnotationType": 20}
	root["DocumentObjectList"] = []any{documentObject}

	sequenceAxes := 0
	if descriptor.IsSequence {
		sequenceAxes = 1
	}
	if sequenceAxes+descriptor.CollectionDimensionCount == 1 || needsSlice {
		if descriptor.IsSequence || wasSequence {
			ensureChild(dmMetadata, "Meta Data")["IsSequence"] = true
		}
		root["ImageSourceList"] = []any{map[string]any{
			"ClassName": "ImageSource:Summed", "Do Sum": true, "Id": []any{0},
			"ImageRef": 0, "LayerEnd": 0, "LayerStart": 0,
			"Summed Dimension": data.Rank() - 1,
		}}
		if needsSlice {
			documentObject["AnnotationGroupList"] = []any{map[string]any{
				"AnnotationType": 23, "Name": "SICursor", "Rectangle": Tuple{0, 0, 1, 1},
			}}
			documentObject["ImageDisplayType"] = 1 // display as an image
		}
	}

	if !rec.Timestamp.IsZero() {
		root["DataBar"] = map[string]any{
			"Acquisition Date": rec.Timestamp.Format("01/02/06"),
			"Acquisition Time": rec.Timestamp.Format("15:04:05") + timezoneSuffix(rec),
		}
		dmMetadata["Timestamp"] = formatTimestamp(rec.Timestamp)
	}
	if rec.Timezone != "" {
		dmMetadata["Timezone"] = rec.Timezone
	}
	if rec.TimezoneOffset != "" {
		dmMetadata["TimezoneOffset"] = rec.TimezoneOffset
	}

	imageTags, err := valueToNode(dmMetadata)
	if err != nil {
		return nil, fmt.Errorf("converting metadata: %w", err)
	}
	image := tagfile.NewDictGroup()
	image.Set("ImageData", imageData)
	image.Set("ImageTags", imageTags)
	imageList := tagfile.NewListGroup()
	imageList.Append(image)
	root["ImageList"] = imageList

	node, err := valueToNode(root)
	if err != nil {
		return nil, err
	}
	return node.(*tagfile.Group), nil
}

// imageDataNodes builds the ImageData group: pixel type, depth, stored
// dimensions (innermost first) and the raw buffer. Byte images must carry a
// trailing channel axis of 3 or 4 and are packed into 32-bit pixels; there
// is no pixel type for a bare byte image.
func imageDataNodes(data ImageData) (*tagfile.Group, error) {
	g := tagfile.NewDictGroup()

	switch {
	case data.Kind == Uint8:
		if data.Rank() < 2 || (data.Shape[data.Rank()-1] != 3 && data.Shape[data.Rank()-1] != 4) {
			return nil, fmt.Errorf("%w: byte image needs a trailing channel axis of 3 or 4, have shape %v",
				ErrUnsupportedType, data.Shape)
		}
		packed := packRGB(data)
		g.Set("DataType", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(pixelRGB)})
		g.Set("PixelDepth", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(4)})
		g.Set("Dimensions", dimensionList(packed.Shape))
		g.Set("Data", &tagfile.Array{ElemType: tagfile.TypeLong, Raw: packed.Raw, Shape: packed.Shape})

	case data.Kind == Complex64 || data.Kind == Complex128:
		fields, _ := complexFieldTypes(data.Kind)
		id, _ := pixelIDOfKind(data.Kind)
		g.Set("DataType", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(id)})
		g.Set("PixelDepth", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(data.Kind.ItemSize())})
		g.Set("Dimensions", dimensionList(data.Shape))
		g.Set("Data", &tagfile.StructArray{FieldTypes: fields, Raw: data.Raw})

	default:
		id, ok := pixelIDOfKind(data.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: no pixel type for %s images", ErrUnsupportedType, data.Kind)
		}
		elem, ok := tagTypeOfKind(data.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: no element type for %s images", ErrUnsupportedType, data.Kind)
		}
		g.Set("DataType", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(id)})
		g.Set("PixelDepth", tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(data.Kind.ItemSize())})
		g.Set("Dimensions", dimensionList(data.Shape))
		g.Set("Data", &tagfile.Array{ElemType: elem, Raw: data.Raw, Shape: data.Shape})
	}
	return g, nil
}

// packRGB squashes the trailing channel axis into 32-bit RGBA pixels,
// padding 3-channel images with opaque alpha.
func packRGB(d ImageData) ImageData {
	channels := d.Shape[d.Rank()-1]
	shape := append([]int{}, d.Shape[:d.Rank()-1]...)
	if channels == 4 {
		return ImageData{Kind: Int32, Shape: shape, Raw: d.Raw}
	}
	raw := make([]byte, 0, len(d.Raw)/3*4)
	for i := 0; i+3 <= len(d.Raw); i += 3 {
		raw = append(raw, d.Raw[i], d.Raw[i+1], d.Raw[i+2], 255)
	}
	return ImageData{Kind: Int32, Shape: shape, Raw: raw}
}

// attachCalibrations adds the Calibrations group. Axis calibrations are
// stored innermost first and only written when one exists per in-memory
// axis; the intensity calibration is always written.
func attachCalibrations(imageData *tagfile.Group, data ImageData, calibrations []Calibration, intensity Calibration) error {
	group := map[string]any{}
	if len(calibrations) > 0 && len(calibrations) == data.Rank() {
		dimension := make([]any, 0, len(calibrations))
		for i := len(calibrations) - 1; i >= 0; i-- {
			c := calibrations[i]
			dimension = append(dimension, map[string]any{
				"Origin": c.origin(),
				"Scale":  c.Scale,
				"Units":  c.Units,
			})
		}
		group["Dimension"] = dimension
	}
	group["Brightness"] = map[string]any{
		"Origin": intensity.origin(),
		"Scale":  intensity.Scale,
		"Units":  intensity.Units,
	}
	node, err := valueToNode(group)
	if err != nil {
		return err
	}
	imageData.Set("Calibrations", node)
	return nil
}

func dimensionList(shape []int) *tagfile.Group {
	g := tagfile.NewListGroup()
	for i := len(shape) - 1; i >= 0; i-- {
		g.Append(tagfile.Scalar{Type: tagfile.TypeLong, Value: int32(shape[i])})
	}
	return g
}

// signalType digs the acquisition signal type out of the metadata tree.
func signalType(metadata map[string]any) string {
	hw, _ := metadata["hardware_source"].(map[string]any)
	s, _ := hw["signal_type"].(string)
	return strings.ToLower(s)
}

func timezoneSuffix(rec *ImageRecord) string {
	name := ""
	if rec.Timezone != "" {
		if loc, err := time.LoadLocation(rec.Timezone); err == nil {
			name, _ = rec.Timestamp.In(loc).Zone()
		}
	}
	if name == "" {
		name = rec.TimezoneOffset
	}
	if name == "" {
		return ""
	}
	return " " + name
}

func formatTimestamp(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}
