// Package dm reads and writes electron-microscopy tag files and assembles
// their primary image into a calibrated record. The container itself (a
// recursive tree of named tag groups and typed leaf data) is handled by an
// internal codec; this package adds the image-level conventions layered on
// top of it: pixel type registry, dimension ordering, calibrations and
// metadata mapping.
package dm

import (
	"errors"

	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// Container-level errors, re-exported so callers can classify failures with
// errors.Is without importing the codec.
var (
	ErrMalformedHeader       = tagfile.ErrMalformedHeader
	ErrUnsupportedEndianness = tagfile.ErrUnsupportedEndianness
	ErrCorruptTagStructure   = tagfile.ErrCorruptTagStructure
	ErrUnsupportedType       = tagfile.ErrUnsupportedType
	ErrUnsupportedNesting    = tagfile.ErrUnsupportedNesting
)

// Image-level errors.
var (
	// ErrCorruptImageData marks an image whose buffer, declared pixel type
	// and dimensions disagree with each other.
	ErrCorruptImageData = errors.New("corrupt image data")

	// ErrNoImage marks a well-formed file with no usable image list.
	ErrNoImage = errors.New("file contains no image")
)
