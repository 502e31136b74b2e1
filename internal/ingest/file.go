package ingest

import (
	"io"
	"io/fs"
	"os"
)

// File is one entry handed to the ingester by the file enumeration.
type File struct {
	Name string
	Path string
	Size int64 // -1 when unknown

	// Regular is false for directories, links, devices and other non-file entries.
	Regular bool

	// Unallocated marks unallocated or unused block ranges of an image.
	Unallocated bool

	// MD5 is the digest already known for the file, if any.
	MD5 string

	Open func() (io.ReadCloser, error)
}

// FileFromPath describes a file on the local file system.
func FileFromPath(path string, info fs.FileInfo) File {
	return File{
		Name:    info.Name(),
		Path:    path,
		Size:    info.Size(),
		Regular: info.Mode().IsRegular(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// ShouldSkip reports whether f carries nothing worth looking up.
func ShouldSkip(f File) bool {
	return f.Unallocated || !f.Regular || f.Size == 0
}
