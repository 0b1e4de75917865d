package archive

import "io"

// readBuffer is the fixed-size staging area between the current source file
// and the encoder. filled counts bytes read from the source, extracted
// counts bytes handed to the encoder; 0 <= extracted <= filled <= size
// holds at all times.
type readBuffer struct {
	data      []byte
	filled    int
	extracted int
}

func newReadBuffer(size int) *readBuffer {
	return &readBuffer{data: make([]byte, size)}
}

// fill performs a single read into the spare capacity and advances filled.
// The error is the reader's, io.EOF included.
func (b *readBuffer) fill(r io.Reader) (int, error) {
	if b.filled == len(b.data) {
		return 0, nil
	}
	n, err := r.Read(b.data[b.filled:])
	b.filled += n
	return n, err
}

// pending returns the bytes read from the source but not yet handed to the
// encoder.
func (b *readBuffer) pending() []byte {
	return b.data[b.extracted:b.filled]
}

// consume marks n pending bytes as handed off. The buffer recycles itself
// once everything read has been extracted.
func (b *readBuffer) consume(n int) {
	b.extracted += n
	if b.extracted >= b.filled {
		b.reset()
	}
}

func (b *readBuffer) drained() bool {
	return b.extracted >= b.filled
}

func (b *readBuffer) reset() {
	b.filled = 0
	b.extracted = 0
}

func (b *readBuffer) size() int {
	return len(b.data)
}
