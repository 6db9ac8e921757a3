package dm

import (
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// assembleRecord extracts the primary image from a decoded tag tree. Files
// may carry several images (thumbnails first); the last image-list entry is
// the full-resolution one.
func assembleRecord(root *tagfile.Group) (*ImageRecord, error) {
	list := root.Child("ImageList")
	if list == nil || len(list.Entries) == 0 {
		return nil, ErrNoImage
	}
	imageGroup, ok := list.Entries[len(list.Entries)-1].Value.(*tagfile.Group)
	if !ok {
		return nil, fmt.Errorf("%w: image list entry is not a group", ErrCorruptImageData)
	}
	imageData := imageGroup.Child("ImageData")
	if imageData == nil {
		return nil, fmt.Errorf("%w: image has no data group", ErrCorruptImageData)
	}

	data, err := imageBuffer(imageData)
	if err != nil {
		return nil, err
	}

	calibrationTags := imageData.Child("Calibrations")
	calibrations := readAxisCalibrations(calibrationTags)
	intensity := readCalibrationGroup(calibrationTags.Child("Brightness"))

	rec := &ImageRecord{Intensity: intensity}
	if title, ok := imageGroup.Text("Name"); ok {
		rec.Title = title
	}

	imageTags := imageGroup.Child("ImageTags")
	format, _ := metaDataText(imageTags, "Format")
	isSpectrum := format == "spectrum" || format == "spectrum image"

	// Classify axes from the buffer shape, reordering spectrum-image
	// buffers so the spectral axis comes last.
	var descriptor DataDescriptor
	switch {
	case data.Rank() == 3 && data.Kind != Uint8:
		if isSpectrum {
			if data.Shape[1] == 1 {
				// A single-row spectrum image is a 1d collection of
				// spectra with the degenerate row axis dropped.
				data = moveAxis(squeezeAxis(data, 1), 0, 1)
				descriptor = DataDescriptor{CollectionDimensionCount: 1, DatumDimensionCount: 1}
				calibrations = []Calibration{index(calibrations, 2), index(calibrations, 0)}
			} else {
				data = moveAxis(data, 0, 2)
				descriptor = DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 1}
				calibrations = []Calibration{index(calibrations, 1), index(calibrations, 2), index(calibrations, 0)}
			}
		} else {
			descriptor = DataDescriptor{CollectionDimensionCount: 1, DatumDimensionCount: 2}
		}
	case data.Rank() == 4 && data.Kind != Uint8:
		descriptor = DataDescriptor{CollectionDimensionCount: 2, DatumDimensionCount: 2}
	case data.Kind == Uint8:
		descriptor = DataDescriptor{DatumDimensionCount: data.Rank() - 1}
	default:
		descriptor = DataDescriptor{DatumDimensionCount: data.Rank()}
	}
	rec.Data = data

	metadata := make(map[string]any)
	if imageTags != nil {
		if voltage, ok := imageTags.Child("ImageScanned").Float("EHT"); ok && voltage != 0 {
			ensureChild(metadata, "hardware_source")["autostem"] = map[string]any{"high_tension": voltage}
		}
		if signal, ok := imageTags.Child("Meta Data").Text("Signal"); ok && strings.ToLower(signal) == "eels" {
			ensureChild(metadata, "hardware_source")["signal_type"] = signal
		}
		if isSpectrum {
			descriptor.CollectionDimensionCount += descriptor.DatumDimensionCount - 1
			descriptor.DatumDimensionCount = 1
		}
		if seq, _ := metaBool(imageTags, "IsSequence"); seq && descriptor.CollectionDimensionCount > 0 {
			descriptor.IsSequence = true
			descriptor.CollectionDimensionCount--
		}
		if ts, ok := imageTags.Text("Timestamp"); ok {
			if t, ok := parseTimestamp(ts); ok {
				rec.Timestamp = t
			}
		}
		rec.Timezone, _ = imageTags.Text("Timezone")
		rec.TimezoneOffset, _ = imageTags.Text("TimezoneOffset")

		// The hoisted copies would otherwise appear twice.
		tags := nodeToValue(imageTags).(map[string]any)
		delete(tags, "Timestamp")
		delete(tags, "Timezone")
		delete(tags, "TimezoneOffset")
		for k, v := range tags {
			metadata[k] = v
		}
	}
	rec.Metadata = metadata
	rec.Descriptor = descriptor

	for len(calibrations) < descriptor.ExpectedDimensionCount() {
		calibrations = append(calibrations, defaultCalibration())
	}
	rec.Calibrations = calibrations
	return rec, nil
}

// imageBuffer validates and decodes the raw image buffer. The declared
// pixel type, pixel depth, dimensions and tag-level element type must all
// agree. Packed RGB buffers are unpacked to byte channels.
func imageBuffer(imageData *tagfile.Group) (ImageData, error) {
	node, ok := imageData.Get("Data")
	if !ok {
		return ImageData{}, fmt.Errorf("%w: missing data buffer", ErrCorruptImageData)
	}

	var data ImageData
	switch v := node.(type) {
	case *tagfile.Array:
		kind, ok := kindOfTagType(v.ElemType)
		if !ok {
			return ImageData{}, fmt.Errorf("%w: image of %s elements", ErrCorruptImageData, v.ElemType)
		}
		data = ImageData{Kind: kind, Raw: v.Raw}
	case *tagfile.StructArray:
		kind, ok := complexKindOfFields(v.FieldTypes)
		if !ok {
			return ImageData{}, fmt.Errorf("%w: image of %v tuples", ErrCorruptImageData, v.FieldTypes)
		}
		data = ImageData{Kind: kind, Raw: v.Raw}
	default:
		return ImageData{}, fmt.Errorf("%w: data buffer is %T", ErrCorruptImageData, node)
	}

	pixelID, ok := imageData.Int("DataType")
	if !ok {
		return ImageData{}, fmt.Errorf("%w: missing pixel type", ErrCorruptImageData)
	}
	declared, ok := kindOfPixelID(pixelID)
	if !ok {
		return ImageData{}, fmt.Errorf("%w: unknown pixel type %d", ErrCorruptImageData, pixelID)
	}
	if declared != data.Kind {
		return ImageData{}, fmt.Errorf("%w: pixel type %d does not match %s elements",
			ErrCorruptImageData, pixelID, data.Kind)
	}
	if depth, ok := imageData.Int("PixelDepth"); ok && int(depth) != data.Kind.ItemSize() {
		return ImageData{}, fmt.Errorf("%w: pixel depth %d does not match %s elements",
			ErrCorruptImageData, depth, data.Kind)
	}

	dims := imageData.Child("Dimensions")
	if dims == nil {
		return ImageData{}, fmt.Errorf("%w: missing dimensions", ErrCorruptImageData)
	}
	// Dimensions are stored innermost first; in-memory shape is outermost
	// first.
	shape := make([]int, 0, len(dims.Entries))
	for i := len(dims.Entries) - 1; i >= 0; i-- {
		s, ok := dims.Entries[i].Value.(tagfile.Scalar)
		if !ok {
			return ImageData{}, fmt.Errorf("%w: dimension entry is not a scalar", ErrCorruptImageData)
		}
		f, _ := scalarFloat(s)
		shape = append(shape, int(f))
	}
	data.Shape = shape
	if err := data.validate(); err != nil {
		return ImageData{}, err
	}

	if pixelID == pixelRGB {
		data = unpackRGB(data)
	}
	return data, nil
}

// unpackRGB expands packed 32-bit pixels into byte channels, appending a
// channel axis. The alpha channel is dropped when it carries no
// information (uniformly opaque); otherwise all four channels are kept.
func unpackRGB(d ImageData) ImageData {
	opaque := true
	for i := 3; i < len(d.Raw); i += 4 {
		if d.Raw[i] != 255 {
			opaque = false
			break
		}
	}
	channels := 4
	raw := d.Raw
	if opaque {
		channels = 3
		raw = make([]byte, 0, len(d.Raw)/4*3)
		for i := 0; i+4 <= len(d.Raw); i += 4 {
			raw = append(raw, d.Raw[i], d.Raw[i+1], d.Raw[i+2])
		}
	}
	shape := append(append([]int{}, d.Shape...), channels)
	return ImageData{Kind: Uint8, Shape: shape, Raw: raw}
}

// readAxisCalibrations returns per-axis calibrations in in-memory axis
// order (the file stores them innermost first).
func readAxisCalibrations(calibrationTags *tagfile.Group) []Calibration {
	dimension := calibrationTags.Child("Dimension")
	if dimension == nil {
		return nil
	}
	out := make([]Calibration, 0, len(dimension.Entries))
	for i := len(dimension.Entries) - 1; i >= 0; i-- {
		g, _ := dimension.Entries[i].Value.(*tagfile.Group)
		out = append(out, readCalibrationGroup(g))
	}
	return out
}

// readCalibrationGroup decodes a single {Origin, Scale, Units} group,
// converting the stored origin to an offset.
func readCalibrationGroup(g *tagfile.Group) Calibration {
	origin := 0.0
	scale := 1.0
	units := ""
	if g != nil {
		if v, ok := g.Float("Origin"); ok {
			origin = v
		}
		if v, ok := g.Float("Scale"); ok {
			scale = v
		}
		if v, ok := g.Text("Units"); ok {
			units = v
		}
	}
	return Calibration{Offset: -origin * scale, Scale: scale, Units: units}
}

// metaDataText returns a lower-cased text value from the Meta Data group.
func metaDataText(imageTags *tagfile.Group, name string) (string, bool) {
	s, ok := imageTags.Child("Meta Data").Text(name)
	return strings.ToLower(s), ok
}

func metaBool(imageTags *tagfile.Group, name string) (bool, bool) {
	return imageTags.Child("Meta Data").Bool(name)
}

func scalarFloat(s tagfile.Scalar) (float64, bool) {
	switch v := normalizeScalar(s).(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// index returns calibrations[i], or the default when the file carried too
// few axis calibrations.
func index(calibrations []Calibration, i int) Calibration {
	if i < len(calibrations) {
		return calibrations[i]
	}
	return defaultCalibration()
}

func ensureChild(m map[string]any, key string) map[string]any {
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	sub := make(map[string]any)
	m[key] = sub
	return sub
}

// parseTimestamp accepts the three timestamp lengths writers produce:
// seconds, milliseconds and microseconds precision.
func parseTimestamp(s string) (time.Time, bool) {
	switch len(s) {
	case 19, 23, 26:
		t, err := time.Parse("2006-01-02T15:04:05", s)
		return t, err == nil
	}
	return time.Time{}, false
}
