package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/balerhq/baler/internal/archive/encoder"
	"github.com/balerhq/baler/internal/archive/sinks"
)

// DefaultBufferSize is the read buffer capacity used when none is
// configured.
const DefaultBufferSize = 512

// Config holds the archive settings fixed at Open time.
type Config struct {
	// Format selects the archive container and compression. Empty means
	// encoder.DefaultFormat.
	Format encoder.Format
	// BufferSize is the read buffer capacity in bytes. It also hints the
	// compressor block size. Zero means DefaultBufferSize.
	BufferSize int
	// Level is the compression level; zero keeps the codec default.
	Level int
}

type Option func(*Writer)

// WithFs overrides the filesystem source files are read from.
func WithFs(fs afero.Fs) Option {
	return func(w *Writer) {
		w.fs = fs
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// Writer incrementally streams queued files into one archive. Files are
// added by path and their contents flow through a fixed-size read buffer
// into the encoder, so a single Write call can be bounded to one unit of
// work. The writer is not safe for concurrent use.
type Writer struct {
	fs     afero.Fs
	logger *zap.Logger

	enc   encoder.Encoder
	buf   *readBuffer
	queue []string

	src       afero.File
	srcEOF    bool
	entryPath string
	total     int64
	remaining int64

	entriesDone int
	bytesRead   int64
	closed      bool
}

// Open builds the encoder for the configured format, opens the sink and
// returns a writer ready to accept files. Failures carry the stage that
// broke: ErrInitFailed, ErrSetFormatFailed, ErrSetCompressionFailed or
// ErrOpenFailed.
func Open(sink sinks.Sink, cfg Config, opts ...Option) (*Writer, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: nil sink", ErrInitFailed)
	}
	if cfg.BufferSize < 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d", ErrInitFailed, cfg.BufferSize)
	}

	w := &Writer{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	format := cfg.Format
	if format == "" {
		format = encoder.DefaultFormat
	}
	bufferSize := cfg.BufferSize
	if bufferSize == 0 {
		bufferSize = DefaultBufferSize
	}

	factory, err := encoder.Lookup(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetFormatFailed, err)
	}

	out, err := sink.Open(format.Extension())
	if err != nil {
		return nil, fmt.Errorf("%w: sink %s: %v", ErrOpenFailed, sink.Name(), err)
	}

	enc, err := factory(out, encoder.Options{BlockSize: bufferSize, Level: cfg.Level})
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("%w: %v", ErrSetCompressionFailed, err)
	}

	w.enc = enc
	w.buf = newReadBuffer(bufferSize)
	w.logger.Debug("archive opened",
		zap.String("sink", sink.Name()),
		zap.String("format", string(format)),
		zap.Int("buffer_size", bufferSize))
	return w, nil
}

// OpenFile opens a writer whose archive lands at path plus the format
// extension.
func OpenFile(path string, cfg Config, opts ...Option) (*Writer, error) {
	return Open(sinks.NewFileSinkFromPath(path), cfg, opts...)
}

// OpenCallbacks opens a writer whose archive bytes are delivered to
// caller-supplied callbacks.
func OpenCallbacks(cb sinks.Callbacks, cfg Config, opts ...Option) (*Writer, error) {
	return Open(sinks.NewCallbackSink(cb), cfg, opts...)
}

// AddFile queues a file for archiving. It only checks that the path can be
// stat'd; content is read later, when the queue reaches it. Returns false,
// leaving the queue untouched, if the path is not usable.
func (w *Writer) AddFile(path string) bool {
	if w.closed {
		return false
	}

	if _, err := w.fs.Stat(path); err != nil {
		w.logger.Debug("rejecting file", zap.String("path", path), zap.Error(err))
		return false
	}

	w.queue = append(w.queue, path)
	return true
}

// Write advances the archive. In ModeStep it performs one bounded unit of
// work and reports whether more remains. In ModeBlock it repeats until
// everything queued is archived, checking ctx between units. Calling Write
// with nothing left to do returns StateFinished and is harmless.
func (w *Writer) Write(ctx context.Context, mode Mode) (State, error) {
	if w.closed {
		return StateFinished, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return w.computeState(), err
		}
		if err := w.step(); err != nil {
			return w.computeState(), err
		}

		state := w.computeState()
		if mode != ModeBlock || state == StateFinished {
			return state, nil
		}
	}
}

// computeState is the single source of truth for progress: work remains
// while paths are queued, or a source is open with unread data or an
// undrained buffer.
func (w *Writer) computeState() State {
	if len(w.queue) > 0 {
		return StateInProgress
	}
	if w.src != nil && (!w.srcEOF || !w.buf.drained()) {
		return StateInProgress
	}
	return StateFinished
}

// step performs one unit of work: start the next queued file if none is in
// flight, then move at most one buffer of its content, completing the
// entry when the declared size has been streamed.
func (w *Writer) step() error {
	if w.src == nil {
		if len(w.queue) == 0 {
			return nil
		}
		if err := w.nextEntry(); err != nil {
			return err
		}
	}

	if w.remaining > 0 && !w.srcEOF {
		n, err := w.buf.fill(w.src)
		w.bytesRead += int64(n)
		switch {
		case errors.Is(err, io.EOF):
			w.srcEOF = true
		case err != nil:
			return fmt.Errorf("%w: reading %s: %v", ErrFileChanged, w.entryPath, err)
		}
	}

	if !w.buf.drained() {
		n, err := w.enc.WriteData(w.buf.pending())
		w.buf.consume(n)
		w.remaining -= int64(n)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrWriteFailed, w.entryPath, err)
		}
	}

	if w.srcEOF && w.remaining > 0 {
		return fmt.Errorf("%w: %s ended %d bytes early", ErrFileChanged, w.entryPath, w.remaining)
	}

	if w.remaining <= 0 || w.srcEOF {
		return w.finishEntry()
	}
	return nil
}

// nextEntry pops the queue head and starts its archive entry. The path
// does not re-enter the queue on failure.
func (w *Writer) nextEntry() error {
	path := w.queue[0]
	w.queue = w.queue[1:]

	f, err := w.fs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrStatFailed, path, err)
	}

	if err := w.enc.WriteHeader(encoder.Entry{Name: path, Size: info.Size()}); err != nil {
		f.Close()
		return fmt.Errorf("%w: header for %s: %v", ErrWriteFailed, path, err)
	}

	w.src = f
	w.srcEOF = false
	w.entryPath = path
	w.total = info.Size()
	w.remaining = info.Size()
	w.logger.Debug("entry started", zap.String("path", path), zap.Int64("size", info.Size()))
	return nil
}

// finishEntry completes the in-flight entry and releases its source. Any
// bytes still buffered belong to the closed source and are discarded.
func (w *Writer) finishEntry() error {
	if err := w.enc.FinishEntry(); err != nil {
		return fmt.Errorf("%w: finishing %s: %v", ErrWriteFailed, w.entryPath, err)
	}

	if err := w.src.Close(); err != nil {
		w.logger.Debug("closing source", zap.String("path", w.entryPath), zap.Error(err))
	}

	w.logger.Debug("entry archived", zap.String("path", w.entryPath), zap.Int64("size", w.total))
	w.src = nil
	w.srcEOF = false
	w.entryPath = ""
	w.total = 0
	w.remaining = 0
	w.buf.reset()
	w.entriesDone++
	return nil
}

// Close releases the encoder, which writes the archive trailer and closes
// the sink. Queued paths are discarded without error. Close is idempotent;
// only the first call does work.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.src != nil {
		if err := w.src.Close(); err != nil {
			w.logger.Debug("closing source", zap.String("path", w.entryPath), zap.Error(err))
		}
		w.src = nil
	}
	w.queue = nil
	w.buf.reset()

	err := w.enc.Release()
	w.enc = nil
	if err != nil {
		return fmt.Errorf("%w: closing archive: %v", ErrWriteFailed, err)
	}

	w.logger.Debug("archive closed",
		zap.Int("entries", w.entriesDone),
		zap.Int64("bytes_read", w.bytesRead))
	return nil
}

// Stats reports progress counters for logging and monitoring.
type Stats struct {
	Pending          int
	CurrentPath      string
	CurrentTotal     int64
	CurrentRemaining int64
	EntriesDone      int
	BytesRead        int64
}

func (w *Writer) Stats() Stats {
	return Stats{
		Pending:          len(w.queue),
		CurrentPath:      w.entryPath,
		CurrentTotal:     w.total,
		CurrentRemaining: w.remaining,
		EntriesDone:      w.entriesDone,
		BytesRead:        w.bytesRead,
	}
}
