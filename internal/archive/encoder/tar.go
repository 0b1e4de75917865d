package encoder

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// tarEncoder writes pax tar entries through a compression filter.
type tarEncoder struct {
	sink       io.WriteCloser
	compressor io.WriteCloser
	tw         *tar.Writer
	remaining  int64
}

func newTar(sink, compressor io.WriteCloser) *tarEncoder {
	return &tarEncoder{
		sink:       sink,
		compressor: compressor,
		tw:         tar.NewWriter(compressor),
	}
}

func newTarLZ4(w io.WriteCloser, opts Options) (Encoder, error) {
	level, err := lz4Level(opts.Level)
	if err != nil {
		return nil, err
	}

	lw := lz4.NewWriter(w)
	if err := lw.Apply(
		lz4.BlockSizeOption(lz4BlockSize(opts.BlockSize)),
		lz4.CompressionLevelOption(level),
	); err != nil {
		return nil, fmt.Errorf("configuring lz4 writer: %w", err)
	}

	return newTar(w, lw), nil
}

func newTarZstd(w io.WriteCloser, opts Options) (Encoder, error) {
	zopts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if opts.Level > 0 {
		zopts = append(zopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)))
	}

	zw, err := zstd.NewWriter(w, zopts...)
	if err != nil {
		return nil, fmt.Errorf("configuring zstd writer: %w", err)
	}

	return newTar(w, zw), nil
}

func newTarGzip(w io.WriteCloser, opts Options) (Encoder, error) {
	level := gzip.DefaultCompression
	if opts.Level > 0 {
		level = opts.Level
	}

	gw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("configuring gzip writer: %w", err)
	}

	return newTar(w, gw), nil
}

func newTarPlain(w io.WriteCloser, _ Options) (Encoder, error) {
	return newTar(w, &nopWriteCloser{w}), nil
}

// lz4Level maps a plain integer level to the lz4 package's level constants.
func lz4Level(n int) (lz4.CompressionLevel, error) {
	levels := []lz4.CompressionLevel{
		lz4.Fast,
		lz4.Level1, lz4.Level2, lz4.Level3,
		lz4.Level4, lz4.Level5, lz4.Level6,
		lz4.Level7, lz4.Level8, lz4.Level9,
	}
	if n < 0 || n >= len(levels) {
		return lz4.Fast, fmt.Errorf("invalid lz4 compression level %d", n)
	}
	return levels[n], nil
}

// lz4BlockSize rounds the hint up to the smallest legal lz4 block size.
func lz4BlockSize(n int) lz4.BlockSize {
	switch {
	case n <= int(lz4.Block64Kb):
		return lz4.Block64Kb
	case n <= int(lz4.Block256Kb):
		return lz4.Block256Kb
	case n <= int(lz4.Block1Mb):
		return lz4.Block1Mb
	default:
		return lz4.Block4Mb
	}
}

func (e *tarEncoder) WriteHeader(entry Entry) error {
	if e.tw == nil {
		return errors.New("encoder is released")
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     entry.Name,
		Size:     entry.Size,
		Mode:     entryMode,
		Uid:      entryUID,
		Gid:      entryGID,
		Format:   tar.FormatPAX,
	}
	if err := e.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", entry.Name, err)
	}

	e.remaining = entry.Size
	return nil
}

func (e *tarEncoder) WriteData(p []byte) (int, error) {
	if e.tw == nil {
		return 0, errors.New("encoder is released")
	}
	if e.remaining <= 0 {
		return 0, nil
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}

	n, err := e.tw.Write(p)
	e.remaining -= int64(n)
	if err != nil {
		return n, fmt.Errorf("writing tar content: %w", err)
	}
	return n, nil
}

func (e *tarEncoder) FinishEntry() error {
	if e.tw == nil {
		return errors.New("encoder is released")
	}
	if err := e.tw.Flush(); err != nil {
		return fmt.Errorf("finishing tar entry: %w", err)
	}
	return nil
}

func (e *tarEncoder) Release() error {
	if e.tw == nil {
		return nil
	}

	var errs []error
	if err := e.tw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing tar writer: %w", err))
	}
	if err := e.compressor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing compressor: %w", err))
	}
	if err := e.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing sink: %w", err))
	}

	e.tw = nil
	e.compressor = nil
	e.sink = nil
	return errors.Join(errs...)
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}
