package encoder

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Format identifies an archive container plus its compression filter.
type Format string

const (
	FormatTarLZ4  Format = "tar.lz4"
	FormatTarZstd Format = "tar.zst"
	FormatTarGzip Format = "tar.gz"
	FormatTar     Format = "tar"
	FormatZip     Format = "zip"
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatTarLZ4

// Extension returns the filename suffix for the format, including the
// leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	if _, ok := factories[f]; !ok {
		return "", &UnsupportedFormatError{Format: s, Available: Formats()}
	}
	return f, nil
}

// Entry describes one file to be added to the archive. Ownership and
// permission bits are fixed by the encoder; only the name and the size
// vary per entry.
type Entry struct {
	Name string
	Size int64
}

// Fixed metadata applied to every entry.
const (
	entryUID  = 1000
	entryGID  = 1000
	entryMode = 0660
)

// Options configures an encoder at construction time.
type Options struct {
	// BlockSize hints the compressor's block or buffer granularity in
	// bytes. Codecs with a fixed set of legal block sizes round up.
	BlockSize int
	// Level selects the compression level; zero keeps the codec default.
	Level int
}

// Encoder serializes entries into one archive byte stream. Implementations
// own the compression filter chain and the destination writer handed to
// their factory, and release both exactly once.
type Encoder interface {
	// WriteHeader starts a new entry. The previous entry must be complete.
	WriteHeader(entry Entry) error

	// WriteData appends content bytes to the current entry. It accepts at
	// most the entry's remaining declared size and reports how many bytes
	// it took, which may be fewer than len(p).
	WriteData(p []byte) (int, error)

	// FinishEntry completes the current entry.
	FinishEntry() error

	// Release writes the archive trailer and closes the filter chain and
	// the destination. Safe to call more than once.
	Release() error
}

// Factory constructs an encoder writing to w. The encoder takes ownership
// of w.
type Factory func(w io.WriteCloser, opts Options) (Encoder, error)

var factories = map[Format]Factory{
	FormatTarLZ4:  newTarLZ4,
	FormatTarZstd: newTarZstd,
	FormatTarGzip: newTarGzip,
	FormatTar:     newTarPlain,
	FormatZip:     newZip,
}

// Lookup returns the factory for the given format.
func Lookup(f Format) (Factory, error) {
	factory, ok := factories[f]
	if !ok {
		return nil, &UnsupportedFormatError{Format: string(f), Available: Formats()}
	}
	return factory, nil
}

// Formats lists the supported format names in sorted order.
func Formats() []string {
	formats := lo.Map(lo.Keys(factories), func(f Format, _ int) string { return string(f) })
	slices.Sort(formats)
	return formats
}

// UnsupportedFormatError is returned when a format is not registered.
type UnsupportedFormatError struct {
	Format    string
	Available []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported archive format %q (available: %v)", e.Format, e.Available)
}
