package sinks

import (
	"errors"
	"fmt"
	"io"
)

// Callbacks holds user-supplied hooks for a destination the caller manages
// itself. Write is the only required hook; the opaque UserData value is
// passed to every call. Free runs exactly once, after Close, so the caller
// can release whatever UserData refers to.
type Callbacks struct {
	UserData any
	Open     func(userdata any) error
	Write    func(userdata any, p []byte) (int, error)
	Close    func(userdata any) error
	Free     func(userdata any) error
}

// CallbackSink adapts caller-managed callbacks to a Sink.
type CallbackSink struct {
	cb Callbacks
}

func NewCallbackSink(cb Callbacks) *CallbackSink {
	return &CallbackSink{cb: cb}
}

func (s *CallbackSink) Name() string {
	return "callbacks"
}

func (s *CallbackSink) Open(string) (io.WriteCloser, error) {
	if s.cb.Write == nil {
		return nil, errors.New("callback sink requires a write callback")
	}

	if s.cb.Open != nil {
		if err := s.cb.Open(s.cb.UserData); err != nil {
			return nil, fmt.Errorf("open callback: %w", err)
		}
	}

	return &callbackWriter{cb: s.cb}, nil
}

type callbackWriter struct {
	cb     Callbacks
	closed bool
}

func (w *callbackWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("callback sink is closed")
	}
	return w.cb.Write(w.cb.UserData, p)
}

func (w *callbackWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if w.cb.Close != nil {
		if err := w.cb.Close(w.cb.UserData); err != nil {
			errs = append(errs, fmt.Errorf("close callback: %w", err))
		}
	}
	if w.cb.Free != nil {
		if err := w.cb.Free(w.cb.UserData); err != nil {
			errs = append(errs, fmt.Errorf("free callback: %w", err))
		}
	}
	return errors.Join(errs...)
}
