package dm

import (
	"fmt"
	"time"
)

// ImageData is an n-dimensional image buffer. Shape lists axis lengths
// outermost first; Raw holds the elements little-endian in C order
// (innermost axis contiguous).
type ImageData struct {
	Kind  DType
	Shape []int
	Raw   []byte
}

// Count returns the number of elements implied by the shape.
func (d *ImageData) Count() int {
	n := 1
	for _, s := range d.Shape {
		n *= s
	}
	return n
}

// Rank returns the number of axes.
func (d *ImageData) Rank() int {
	return len(d.Shape)
}

func (d *ImageData) validate() error {
	item := d.Kind.ItemSize()
	if item == 0 {
		return fmt.Errorf("%w: unknown element type %s", ErrCorruptImageData, d.Kind)
	}
	for _, s := range d.Shape {
		if s < 0 {
			return fmt.Errorf("%w: negative dimension %d", ErrCorruptImageData, s)
		}
	}
	if want := d.Count() * item; len(d.Raw) != want {
		return fmt.Errorf("%w: %d raw bytes for shape %v of %s (want %d)",
			ErrCorruptImageData, len(d.Raw), d.Shape, d.Kind, want)
	}
	return nil
}

// ImageRecord is one image together with everything needed to interpret
// it: axis classification, per-axis and intensity calibrations, and the
// image's metadata tree.
//
// Calibrations are ordered to match Data.Shape. Metadata holds plain Go
// values: nested map[string]any and []any containers with int64, float64,
// bool, string and Tuple leaves.
type ImageRecord struct {
	Data         ImageData
	Descriptor   DataDescriptor
	Calibrations []Calibration
	Intensity    Calibration
	Metadata     map[string]any

	// Title is the image's display name, when the file carries one. It is
	// informational and not written back.
	Title string

	// Timestamp is zero when the file carries no acquisition time.
	Timestamp      time.Time
	Timezone       string
	TimezoneOffset string
}
