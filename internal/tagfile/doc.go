// Package tagfile implements the DM3/DM4 tag-tree container codec.
//
// A tag file is a recursive, self-describing container: a header (version
// tag, backpatched file size, endianness flag) wrapping a root group, with a
// two-word zero trailer. Groups hold ordered entries, either all named
// (dict-like) or all unnamed (list-like); each entry carries either a nested
// group or a typed leaf value (scalar, string, struct, array, struct array).
//
// DM3 files use 32-bit size fields, DM4 files 64-bit; the width is selected
// once by the version tag and threaded through every call via binary.Config.
// Structural fields are big-endian, leaf payloads little-endian.
package tagfile
