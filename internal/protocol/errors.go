package protocol

import "errors"

var (
	// ErrParse reports a structurally incomplete or malformed frame.
	ErrParse = errors.New("invalid signal data")
	// ErrAborted reports that the read-retry budget ran out before a full
	// frame arrived.
	ErrAborted = errors.New("connection aborted")
	// ErrClosedByPeer reports a zero-length read: the remote end hung up.
	ErrClosedByPeer = errors.New("connection closed by peer")
	// ErrBrokenTransport reports any other I/O fault on the stream.
	ErrBrokenTransport = errors.New("broken transport")
	// ErrFrameTooLarge reports a frame exceeding the configured size limit.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// IsDisconnect reports whether err means the underlying connection is no
// longer usable.
func IsDisconnect(err error) bool {
	return errors.Is(err, ErrClosedByPeer) ||
		errors.Is(err, ErrBrokenTransport) ||
		errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrFrameTooLarge)
}
