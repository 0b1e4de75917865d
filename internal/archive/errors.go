package archive

import "errors"

// Failure kinds surfaced by Open, Write and Close. Every error returned by
// the writer wraps exactly one of these, so callers can match with
// errors.Is and still see the underlying cause.
var (
	// ErrInitFailed reports that the writer could not be constructed.
	ErrInitFailed = errors.New("archive init failed")
	// ErrSetFormatFailed reports an unknown or unusable archive format.
	ErrSetFormatFailed = errors.New("set format failed")
	// ErrSetCompressionFailed reports a compression filter that could not
	// be configured, including invalid levels and block sizes.
	ErrSetCompressionFailed = errors.New("set compression failed")
	// ErrOpenFailed reports that the destination or a queued source file
	// could not be opened.
	ErrOpenFailed = errors.New("open failed")
	// ErrWriteFailed reports that emitting header, content or trailer
	// bytes to the archive failed.
	ErrWriteFailed = errors.New("write failed")
	// ErrStatFailed reports that a dequeued source file could not be
	// stat'd to size its entry.
	ErrStatFailed = errors.New("stat failed")
	// ErrFileChanged reports that a source file shrank or became
	// unreadable between being sized and being fully streamed.
	ErrFileChanged = errors.New("file changed during archiving")
)
