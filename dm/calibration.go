package dm

// Calibration maps pixel indices on one axis (or intensity values) to
// physical units: physical = offset + index*scale. Files store the same
// mapping as an origin in pixels; the two are related by
// offset = -origin*scale.
type Calibration struct {
	Offset float64
	Scale  float64
	Units  string
}

func defaultCalibration() Calibration {
	return Calibration{Scale: 1}
}

// origin converts the calibration back to the stored pixel-origin form. A
// zero scale has no well-defined origin and maps to 0.
func (c Calibration) origin() float64 {
	if c.Scale == 0 {
		return 0
	}
	return -c.Offset / c.Scale
}

// DataDescriptor classifies the axes of an image buffer: an optional
// leading sequence axis, then collection axes, then datum axes. A plain 2d
// image is (false, 0, 2); a spectrum image is (false, 2, 1).
type DataDescriptor struct {
	IsSequence               bool
	CollectionDimensionCount int
	DatumDimensionCount      int
}

// ExpectedDimensionCount returns the number of axes the descriptor
// describes.
func (d DataDescriptor) ExpectedDimensionCount() int {
	n := d.CollectionDimensionCount + d.DatumDimensionCount
	if d.IsSequence {
		n++
	}
	return n
}
