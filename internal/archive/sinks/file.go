package sinks

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileSink writes the archive to a filesystem path. The configured path is
// a base name; the format extension is appended when the sink opens.
type FileSink struct {
	fs      afero.Fs
	path    string
	created string
}

func NewFileSink(fs afero.Fs, path string) *FileSink {
	return &FileSink{fs: fs, path: filepath.Clean(path)}
}

func NewFileSinkFromPath(path string) *FileSink {
	return NewFileSink(afero.NewOsFs(), path)
}

func (s *FileSink) Name() string {
	return fmt.Sprintf("file(%s)", s.path)
}

func (s *FileSink) Open(ext string) (io.WriteCloser, error) {
	full := s.path + ext

	dir := filepath.Dir(full)
	if dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := s.fs.Create(full)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", full, err)
	}

	s.created = full
	return f, nil
}

// CreatedPath returns the full output path once the sink has opened.
func (s *FileSink) CreatedPath() string {
	return s.created
}
