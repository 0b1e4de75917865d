package encoder

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// zipEncoder writes deflate-compressed zip entries.
type zipEncoder struct {
	sink      io.WriteCloser
	zw        *zip.Writer
	entry     io.Writer
	remaining int64
}

func newZip(w io.WriteCloser, opts Options) (Encoder, error) {
	level := flate.DefaultCompression
	if opts.Level > 0 {
		level = opts.Level
	}

	// RegisterCompressor defers level validation to the first entry, so
	// check it up front.
	if _, err := flate.NewWriter(io.Discard, level); err != nil {
		return nil, fmt.Errorf("configuring deflate level: %w", err)
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	return &zipEncoder{sink: w, zw: zw}, nil
}

func (e *zipEncoder) WriteHeader(entry Entry) error {
	if e.zw == nil {
		return errors.New("encoder is released")
	}

	hdr := &zip.FileHeader{
		Name:               entry.Name,
		Method:             zip.Deflate,
		UncompressedSize64: uint64(entry.Size),
	}
	hdr.SetMode(entryMode)

	w, err := e.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("writing zip header for %s: %w", entry.Name, err)
	}

	e.entry = w
	e.remaining = entry.Size
	return nil
}

func (e *zipEncoder) WriteData(p []byte) (int, error) {
	if e.entry == nil {
		return 0, errors.New("no open zip entry")
	}
	if e.remaining <= 0 {
		return 0, nil
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}

	n, err := e.entry.Write(p)
	e.remaining -= int64(n)
	if err != nil {
		return n, fmt.Errorf("writing zip content: %w", err)
	}
	return n, nil
}

func (e *zipEncoder) FinishEntry() error {
	if e.zw == nil {
		return errors.New("encoder is released")
	}

	// The zip writer finalizes an entry when the next one starts or the
	// archive closes.
	e.entry = nil
	return nil
}

func (e *zipEncoder) Release() error {
	if e.zw == nil {
		return nil
	}

	var errs []error
	if err := e.zw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing zip writer: %w", err))
	}
	if err := e.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sink: %w", err))
	}

	e.zw = nil
	e.entry = nil
	e.sink = nil
	return errors.Join(errs...)
}
