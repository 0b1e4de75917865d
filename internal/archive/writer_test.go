package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balerhq/baler/internal/archive/encoder"
	"github.com/balerhq/baler/internal/archive/sinks"
)

// decodedEntry is one archive member in encounter order.
type decodedEntry struct {
	name    string
	content string
}

// decodeArchive decompresses and unpacks an archive of the given format.
func decodeArchive(t *testing.T, format encoder.Format, data []byte) []decodedEntry {
	t.Helper()

	if format == encoder.FormatZip {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		require.NoError(t, err)

		var entries []decodedEntry
		for _, f := range zr.File {
			rc, err := f.Open()
			require.NoError(t, err)
			content, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			entries = append(entries, decodedEntry{name: f.Name, content: string(content)})
		}
		return entries
	}

	var decompressed io.Reader
	switch format {
	case encoder.FormatTarLZ4:
		decompressed = lz4.NewReader(bytes.NewReader(data))
	case encoder.FormatTarZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer zr.Close()
		decompressed = zr
	case encoder.FormatTarGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer lo.Must0(gr.Close())
		decompressed = gr
	case encoder.FormatTar:
		decompressed = bytes.NewReader(data)
	default:
		t.Fatalf("unknown format %s", format)
	}

	tr := tar.NewReader(decompressed)
	var entries []decodedEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries = append(entries, decodedEntry{name: hdr.Name, content: string(content)})
	}
	return entries
}

func writeTestFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
}

func newTestWriter(t *testing.T, fs afero.Fs, cfg Config) (*Writer, *sinks.FileSink) {
	t.Helper()
	sink := sinks.NewFileSink(fs, "out")
	w, err := Open(sink, cfg, WithFs(fs))
	require.NoError(t, err)
	return w, sink
}

func readArchive(t *testing.T, fs afero.Fs, sink *sinks.FileSink) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, sink.CreatedPath())
	require.NoError(t, err)
	return data
}

var allFormats = []encoder.Format{
	encoder.FormatTarLZ4,
	encoder.FormatTarZstd,
	encoder.FormatTarGzip,
	encoder.FormatTar,
	encoder.FormatZip,
}

func TestWriter_RoundTrip(t *testing.T) {
	for _, format := range allFormats {
		t.Run(string(format), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeTestFiles(t, fs, map[string]string{
				"a.txt": "hello",
				"b.txt": "world",
			})

			// A buffer smaller than the contents forces multiple fill
			// cycles per file.
			w, sink := newTestWriter(t, fs, Config{Format: format, BufferSize: 4})
			require.True(t, w.AddFile("a.txt"))
			require.True(t, w.AddFile("b.txt"))

			state, err := w.Write(t.Context(), ModeBlock)
			require.NoError(t, err)
			assert.Equal(t, StateFinished, state)
			require.NoError(t, w.Close())

			entries := decodeArchive(t, format, readArchive(t, fs, sink))
			require.Len(t, entries, 2)
			assert.Equal(t, "a.txt", entries[0].name)
			assert.Equal(t, "hello", entries[0].content)
			assert.Equal(t, "b.txt", entries[1].name)
			assert.Equal(t, "world", entries[1].content)
		})
	}
}

func TestWriter_StepMatchesBlock(t *testing.T) {
	files := map[string]string{
		"one.txt":   "first file contents",
		"two.txt":   "second",
		"three.txt": "third file is a little longer than the others",
	}

	build := func(t *testing.T, format encoder.Format, mode Mode) []byte {
		fs := afero.NewMemMapFs()
		writeTestFiles(t, fs, files)

		w, sink := newTestWriter(t, fs, Config{Format: format, BufferSize: 8})
		require.True(t, w.AddFile("one.txt"))
		require.True(t, w.AddFile("two.txt"))
		require.True(t, w.AddFile("three.txt"))

		for {
			state, err := w.Write(t.Context(), mode)
			require.NoError(t, err)
			if state == StateFinished {
				break
			}
		}
		require.NoError(t, w.Close())
		return readArchive(t, fs, sink)
	}

	for _, format := range allFormats {
		t.Run(string(format), func(t *testing.T) {
			stepped := build(t, format, ModeStep)
			blocked := build(t, format, ModeBlock)
			assert.Equal(t, blocked, stepped, "bounded steps must produce the same bytes as one blocking call")
		})
	}
}

func TestWriter_FinishedIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, _ := newTestWriter(t, fs, Config{})

	for range 3 {
		state, err := w.Write(t.Context(), ModeStep)
		require.NoError(t, err)
		assert.Equal(t, StateFinished, state)
	}

	require.NoError(t, w.Close())

	state, err := w.Write(t.Context(), ModeBlock)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, state)
}

func TestWriter_QueueOrderPreserved(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{
		"d.txt": "4", "b.txt": "2", "c.txt": "3", "a.txt": "1",
	})

	w, sink := newTestWriter(t, fs, Config{Format: encoder.FormatTarGzip})
	for _, name := range []string{"d.txt", "b.txt", "c.txt", "a.txt"} {
		require.True(t, w.AddFile(name))
	}

	_, err := w.Write(t.Context(), ModeBlock)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries := decodeArchive(t, encoder.FormatTarGzip, readArchive(t, fs, sink))
	require.Len(t, entries, 4)
	var names []string
	for _, e := range entries {
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"d.txt", "b.txt", "c.txt", "a.txt"}, names, "entries must appear in enqueue order")
}

func TestWriter_AddFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"present.txt": "here"})

	w, _ := newTestWriter(t, fs, Config{})
	defer w.Close()

	assert.False(t, w.AddFile("missing.txt"), "AddFile() should reject paths that cannot be stat'd")
	assert.Zero(t, w.Stats().Pending)

	assert.True(t, w.AddFile("present.txt"))
	assert.Equal(t, 1, w.Stats().Pending)
}

func TestWriter_SteppedProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := bytes.Repeat([]byte("x"), 32)
	require.NoError(t, afero.WriteFile(fs, "big.bin", content, 0644))

	w, sink := newTestWriter(t, fs, Config{Format: encoder.FormatTarGzip, BufferSize: 8})
	require.True(t, w.AddFile("big.bin"))

	state, err := w.Write(t.Context(), ModeStep)
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, state)

	stats := w.Stats()
	assert.Equal(t, "big.bin", stats.CurrentPath)
	assert.Equal(t, int64(32), stats.CurrentTotal)
	assert.Equal(t, int64(24), stats.CurrentRemaining)

	steps := 1
	for state == StateInProgress {
		state, err = w.Write(t.Context(), ModeStep)
		require.NoError(t, err)
		steps++
	}
	assert.Equal(t, 4, steps, "32 bytes through an 8 byte buffer is four steps")
	require.NoError(t, w.Close())

	entries := decodeArchive(t, encoder.FormatTarGzip, readArchive(t, fs, sink))
	require.Len(t, entries, 1)
	assert.Equal(t, string(content), entries[0].content)
}

func TestWriter_ZeroLengthFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"empty.txt": ""})

	w, sink := newTestWriter(t, fs, Config{Format: encoder.FormatTarGzip})
	require.True(t, w.AddFile("empty.txt"))

	state, err := w.Write(t.Context(), ModeStep)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, state, "an empty file completes in a single step")
	require.NoError(t, w.Close())

	entries := decodeArchive(t, encoder.FormatTarGzip, readArchive(t, fs, sink))
	require.Len(t, entries, 1)
	assert.Equal(t, "empty.txt", entries[0].name)
	assert.Empty(t, entries[0].content)
}

func TestWriter_FileChangedOnTruncation(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"mutable.txt": "twelve bytes"})

	w, _ := newTestWriter(t, fs, Config{Format: encoder.FormatTarLZ4, BufferSize: 4})
	require.True(t, w.AddFile("mutable.txt"))

	state, err := w.Write(t.Context(), ModeStep)
	require.NoError(t, err)
	require.Equal(t, StateInProgress, state)

	// Shrink the file under the writer, between steps.
	f, err := fs.OpenFile("mutable.txt", os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(4))
	require.NoError(t, f.Close())

	for err == nil {
		_, err = w.Write(t.Context(), ModeStep)
	}
	assert.ErrorIs(t, err, ErrFileChanged)

	// The truncated entry cannot be completed, so closing reports the
	// short write.
	assert.Error(t, w.Close())
}

func TestWriter_GrownFileTruncatedToDeclaredSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{
		"grower.txt": "0123456789",
		"after.txt":  "ok",
	})

	w, sink := newTestWriter(t, fs, Config{Format: encoder.FormatTarGzip, BufferSize: 4})
	require.True(t, w.AddFile("grower.txt"))
	require.True(t, w.AddFile("after.txt"))

	state, err := w.Write(t.Context(), ModeStep)
	require.NoError(t, err)
	require.Equal(t, StateInProgress, state)

	// Grow the file under the writer; the entry keeps its declared size.
	f, err := fs.OpenFile("grower.txt", os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = f.Write([]byte("ABCDEFGH"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	for state == StateInProgress {
		state, err = w.Write(t.Context(), ModeStep)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	entries := decodeArchive(t, encoder.FormatTarGzip, readArchive(t, fs, sink))
	require.Len(t, entries, 2)
	assert.Equal(t, "0123456789", entries[0].content, "grown tail must not leak into the entry")
	assert.Equal(t, "ok", entries[1].content, "grown tail must not leak into the next entry")
}

func TestWriter_CloseDiscardsQueue(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"a.txt": "a", "b.txt": "b"})

	w, sink := newTestWriter(t, fs, Config{Format: encoder.FormatTarGzip})
	require.True(t, w.AddFile("a.txt"))
	require.True(t, w.AddFile("b.txt"))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close() must be idempotent")

	state, err := w.Write(t.Context(), ModeBlock)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, state)

	entries := decodeArchive(t, encoder.FormatTarGzip, readArchive(t, fs, sink))
	assert.Empty(t, entries, "queued files must not be written on close")
}

func TestWriter_OpenFailedOnMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"gone.txt": "soon"})

	w, _ := newTestWriter(t, fs, Config{})
	require.True(t, w.AddFile("gone.txt"))
	require.NoError(t, fs.Remove("gone.txt"))

	_, err := w.Write(t.Context(), ModeBlock)
	assert.ErrorIs(t, err, ErrOpenFailed)
	require.NoError(t, w.Close())
}

func TestWriter_ContextCanceled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"a.txt": "a"})

	w, _ := newTestWriter(t, fs, Config{})
	require.True(t, w.AddFile("a.txt"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := w.Write(ctx, ModeBlock)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, w.Close())
}

func TestWriter_CallbackSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFiles(t, fs, map[string]string{"a.txt": "callback content"})

	var out bytes.Buffer
	var opened, closed, freed bool
	cb := sinks.Callbacks{
		UserData: &out,
		Open: func(userdata any) error {
			opened = true
			return nil
		},
		Write: func(userdata any, p []byte) (int, error) {
			return userdata.(*bytes.Buffer).Write(p)
		},
		Close: func(userdata any) error {
			closed = true
			return nil
		},
		Free: func(userdata any) error {
			require.True(t, closed, "free must run after close")
			freed = true
			return nil
		},
	}

	w, err := OpenCallbacks(cb, Config{Format: encoder.FormatTarGzip}, WithFs(fs))
	require.NoError(t, err)
	assert.True(t, opened)

	require.True(t, w.AddFile("a.txt"))
	_, err = w.Write(t.Context(), ModeBlock)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.True(t, closed)
	assert.True(t, freed)

	entries := decodeArchive(t, encoder.FormatTarGzip, out.Bytes())
	require.Len(t, entries, 1)
	assert.Equal(t, "callback content", entries[0].content)
}

func TestOpen_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	tests := []struct {
		name    string
		sink    sinks.Sink
		cfg     Config
		wantErr error
	}{
		{
			name:    "nil sink",
			sink:    nil,
			cfg:     Config{},
			wantErr: ErrInitFailed,
		},
		{
			name:    "negative buffer size",
			sink:    sinks.NewFileSink(fs, "out"),
			cfg:     Config{BufferSize: -1},
			wantErr: ErrInitFailed,
		},
		{
			name:    "unknown format",
			sink:    sinks.NewFileSink(fs, "out"),
			cfg:     Config{Format: "rar"},
			wantErr: ErrSetFormatFailed,
		},
		{
			name:    "bad compression level",
			sink:    sinks.NewFileSink(fs, "out"),
			cfg:     Config{Format: encoder.FormatTarGzip, Level: 99},
			wantErr: ErrSetCompressionFailed,
		},
		{
			name:    "unwritable destination",
			sink:    sinks.NewFileSink(afero.NewReadOnlyFs(fs), "out"),
			cfg:     Config{},
			wantErr: ErrOpenFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.sink, tt.cfg, WithFs(fs))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
