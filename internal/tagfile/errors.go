package tagfile

import "errors"

// Codec errors. All failures decode/encode paths can hit wrap one of these,
// so callers can classify with errors.Is.
var (
	ErrMalformedHeader       = errors.New("malformed tag file header")
	ErrUnsupportedEndianness = errors.New("unsupported endianness")
	ErrCorruptTagStructure   = errors.New("corrupt tag structure")
	ErrUnsupportedType       = errors.New("unsupported tag type")
	ErrUnsupportedNesting    = errors.New("structs of structs are not supported")
)
