package source

import (
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// File is a selected or dropped file whose type is declared by its origin.
type File interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

// LocalFile is a File on the local filesystem. The declared type comes from the
// extension, falling back to content sniffing for unknown extensions.
type LocalFile struct {
	path        string
	contentType string
}

// NewLocalFile describes the file at path.
func NewLocalFile(path string) *LocalFile {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		if detected, err := mimetype.DetectFile(path); err == nil {
			contentType = detected.String()
		}
	}
	return &LocalFile{path: path, contentType: contentType}
}

func (f *LocalFile) Name() string                 { return filepath.Base(f.path) }
func (f *LocalFile) ContentType() string          { return f.contentType }
func (f *LocalFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }
