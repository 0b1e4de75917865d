package encoder

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	name    string
	content string
}

// buildArchive runs the entries through the format's encoder and returns
// the raw archive bytes.
func buildArchive(t *testing.T, format Format, opts Options, entries []testEntry) []byte {
	t.Helper()

	var out bytes.Buffer
	factory, err := Lookup(format)
	require.NoError(t, err)
	enc, err := factory(&nopWriteCloser{&out}, opts)
	require.NoError(t, err)

	for _, entry := range entries {
		require.NoError(t, enc.WriteHeader(Entry{Name: entry.name, Size: int64(len(entry.content))}))
		n, err := enc.WriteData([]byte(entry.content))
		require.NoError(t, err)
		require.Equal(t, len(entry.content), n)
		require.NoError(t, enc.FinishEntry())
	}
	require.NoError(t, enc.Release())
	return out.Bytes()
}

// readTarEntries decompresses data for the given tar format and returns
// headers and contents in archive order.
func readTarEntries(t *testing.T, format Format, data []byte) ([]*tar.Header, []string) {
	t.Helper()

	var r io.Reader
	switch format {
	case FormatTarLZ4:
		r = lz4.NewReader(bytes.NewReader(data))
	case FormatTarZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer zr.Close()
		r = zr
	case FormatTarGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		r = gr
	case FormatTar:
		r = bytes.NewReader(data)
	default:
		t.Fatalf("not a tar format: %s", format)
	}

	tr := tar.NewReader(r)
	var headers []*tar.Header
	var contents []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		headers = append(headers, hdr)
		contents = append(contents, string(content))
	}
	return headers, contents
}

var tarFormats = []Format{FormatTarLZ4, FormatTarZstd, FormatTarGzip, FormatTar}

func TestTarEncoder_RoundTrip(t *testing.T) {
	entries := []testEntry{
		{name: "etc/config.yaml", content: "key: value\n"},
		{name: "logs/app.log", content: "line one\nline two\n"},
	}

	for _, format := range tarFormats {
		t.Run(string(format), func(t *testing.T) {
			data := buildArchive(t, format, Options{BlockSize: 512}, entries)

			headers, contents := readTarEntries(t, format, data)
			require.Len(t, headers, len(entries))
			for i, entry := range entries {
				assert.Equal(t, entry.name, headers[i].Name)
				assert.Equal(t, int64(len(entry.content)), headers[i].Size)
				assert.Equal(t, entry.content, contents[i])
			}
		})
	}
}

func TestTarEncoder_EntryMetadata(t *testing.T) {
	data := buildArchive(t, FormatTar, Options{}, []testEntry{{name: "a.txt", content: "x"}})

	headers, _ := readTarEntries(t, FormatTar, data)
	require.Len(t, headers, 1)

	hdr := headers[0]
	assert.Equal(t, byte(tar.TypeReg), hdr.Typeflag)
	assert.Equal(t, int64(0660), hdr.Mode)
	assert.Equal(t, 1000, hdr.Uid)
	assert.Equal(t, 1000, hdr.Gid)
	assert.Zero(t, hdr.ModTime.Unix(), "timestamps are pinned so output is deterministic")
}

func TestTarEncoder_ClampsToDeclaredSize(t *testing.T) {
	var out bytes.Buffer
	enc, err := newTarPlain(&nopWriteCloser{&out}, Options{})
	require.NoError(t, err)

	require.NoError(t, enc.WriteHeader(Entry{Name: "clamped.txt", Size: 4}))

	n, err := enc.WriteData([]byte("123456"))
	require.NoError(t, err)
	assert.Equal(t, 4, n, "bytes past the declared size must be refused")

	n, err = enc.WriteData([]byte("more"))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, enc.FinishEntry())
	require.NoError(t, enc.Release())

	_, contents := readTarEntries(t, FormatTar, out.Bytes())
	require.Len(t, contents, 1)
	assert.Equal(t, "1234", contents[0])
}

func TestTarEncoder_ReleaseIdempotent(t *testing.T) {
	var out bytes.Buffer
	enc, err := newTarPlain(&nopWriteCloser{&out}, Options{})
	require.NoError(t, err)

	require.NoError(t, enc.Release())
	require.NoError(t, enc.Release())

	assert.EqualError(t, enc.WriteHeader(Entry{Name: "late.txt", Size: 1}), "encoder is released")
	_, err = enc.WriteData([]byte("x"))
	assert.EqualError(t, err, "encoder is released")
	assert.EqualError(t, enc.FinishEntry(), "encoder is released")
}

func TestTarEncoder_BadLevels(t *testing.T) {
	_, err := newTarLZ4(&nopWriteCloser{io.Discard}, Options{Level: 10})
	assert.Error(t, err)

	_, err = newTarGzip(&nopWriteCloser{io.Discard}, Options{Level: 99})
	assert.Error(t, err)
}

func TestLZ4Level(t *testing.T) {
	tests := []struct {
		level int
		want  lz4.CompressionLevel
	}{
		{level: 0, want: lz4.Fast},
		{level: 1, want: lz4.Level1},
		{level: 5, want: lz4.Level5},
		{level: 9, want: lz4.Level9},
	}

	for _, tt := range tests {
		got, err := lz4Level(tt.level)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := lz4Level(-1)
	assert.Error(t, err)
	_, err = lz4Level(10)
	assert.Error(t, err)
}

func TestLZ4BlockSize(t *testing.T) {
	assert.Equal(t, lz4.Block64Kb, lz4BlockSize(0))
	assert.Equal(t, lz4.Block64Kb, lz4BlockSize(512))
	assert.Equal(t, lz4.Block64Kb, lz4BlockSize(64<<10))
	assert.Equal(t, lz4.Block256Kb, lz4BlockSize((64<<10)+1))
	assert.Equal(t, lz4.Block1Mb, lz4BlockSize(300<<10))
	assert.Equal(t, lz4.Block4Mb, lz4BlockSize(2<<20))
	assert.Equal(t, lz4.Block4Mb, lz4BlockSize(16<<20))
}
