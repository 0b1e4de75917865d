package sinks

import "io"

// StreamSink writes the archive to a caller-owned writer. The writer is
// not closed; the caller keeps ownership.
type StreamSink struct {
	w io.Writer
}

func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Name() string {
	return "stream"
}

func (s *StreamSink) Open(string) (io.WriteCloser, error) {
	return &nopWriteCloser{s.w}, nil
}
