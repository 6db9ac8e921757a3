package dm

import (
	"fmt"
	"io"
	"os"

	"github.com/robert-malhotra/go-dm4/internal/binary"
	"github.com/robert-malhotra/go-dm4/internal/tagfile"
)

// Version selects the container generation written by Save. Both versions
// decode transparently.
type Version = tagfile.Version

const (
	V3 = tagfile.V3
	V4 = tagfile.V4
)

// Load decodes a tag file and assembles its primary image.
func Load(r io.ReaderAt) (*ImageRecord, error) {
	root, _, err := tagfile.Read(r)
	if err != nil {
		return nil, err
	}
	return assembleRecord(root)
}

// LoadFile loads the primary image from the file at path.
func LoadFile(path string) (*ImageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// NewSeekableWriterAt adapts an io.WriteSeeker for Save, which needs
// positioned writes to backpatch length fields.
func NewSeekableWriterAt(ws io.WriteSeeker) io.WriterAt {
	return binary.NewSeekableWriterAt(ws)
}

// Save writes the record as a tag file at the given version.
func Save(w io.WriterAt, rec *ImageRecord, version Version) error {
	root, err := buildTagTree(rec)
	if err != nil {
		return err
	}
	return tagfile.Write(w, root, version)
}

// SaveFile writes the record to a new file at path, replacing any existing
// file.
func SaveFile(path string, rec *ImageRecord, version Version) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Save(f, rec, version); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
