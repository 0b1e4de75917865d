package sinks

import "io"

// Sink is a destination for a single archive byte stream. Open is called
// once per archive with the format's filename extension; destinations that
// name their output (files, object keys) append it, the rest ignore it.
type Sink interface {
	Name() string
	Open(ext string) (io.WriteCloser, error)
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}

// contentTypeForExtension returns the Content-Type for an archive filename
// suffix.
func contentTypeForExtension(ext string) string {
	switch ext {
	case ".tar":
		return "application/x-tar"
	case ".tar.gz":
		return "application/gzip"
	case ".tar.zst":
		return "application/zstd"
	case ".tar.lz4":
		return "application/x-lz4"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
