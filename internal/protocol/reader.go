package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// DefaultPollInterval is the read deadline armed for each bounded attempt.
const DefaultPollInterval = time.Second

// ReadDeadliner is implemented by connections that support read deadlines,
// such as net.Conn.
type ReadDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// FrameReader assembles frames from a byte stream. It is not safe for
// concurrent use.
type FrameReader struct {
	r            *bufio.Reader
	deadliner    ReadDeadliner
	pollInterval time.Duration
	maxFrameSize int
}

// FrameReaderOption customises a FrameReader.
type FrameReaderOption func(*FrameReader)

// WithPollInterval sets how long a bounded read attempt waits before it
// counts as one retry.
func WithPollInterval(d time.Duration) FrameReaderOption {
	return func(fr *FrameReader) {
		if d > 0 {
			fr.pollInterval = d
		}
	}
}

// WithMaxFrameSize limits the size of a single frame. Zero disables the limit.
func WithMaxFrameSize(n int) FrameReaderOption {
	return func(fr *FrameReader) {
		fr.maxFrameSize = n
	}
}

// NewFrameReader wraps r. When r also implements ReadDeadliner, bounded
// reads arm a deadline per attempt; otherwise they rely on r to surface
// timeouts itself.
func NewFrameReader(r io.Reader, opts ...FrameReaderOption) *FrameReader {
	fr := &FrameReader{
		r:            bufio.NewReader(r),
		pollInterval: DefaultPollInterval,
	}
	if d, ok := r.(ReadDeadliner); ok {
		fr.deadliner = d
	}
	for _, opt := range opts {
		opt(fr)
	}
	return fr
}

// ReadFrame reads exactly one frame. With maxRetries <= 0 it blocks until a
// frame arrives or the stream fails. With a positive bound, every attempt
// that times out counts as a retry and the call fails with ErrAborted once
// the bound is reached.
func (fr *FrameReader) ReadFrame(maxRetries int) (string, error) {
	bounded := maxRetries > 0
	if !bounded && fr.deadliner != nil {
		if err := fr.deadliner.SetReadDeadline(time.Time{}); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBrokenTransport, err)
		}
	}

	var (
		acc       strings.Builder
		headerEnd = -1
		retries   int
	)

	for {
		if bounded && fr.deadliner != nil {
			if err := fr.deadliner.SetReadDeadline(time.Now().Add(fr.pollInterval)); err != nil {
				return "", fmt.Errorf("%w: %v", ErrBrokenTransport, err)
			}
		}

		chunk, err := fr.r.ReadSlice('\n')
		acc.Write(chunk)

		if fr.maxFrameSize > 0 && acc.Len() > fr.maxFrameSize {
			return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, acc.Len())
		}

		if err != nil {
			switch {
			case errors.Is(err, bufio.ErrBufferFull):
				continue
			case isTimeout(err):
				retries++
				if bounded && retries >= maxRetries {
					return "", fmt.Errorf("%w: no frame after %d attempts", ErrAborted, retries)
				}
				continue
			case errors.Is(err, io.EOF):
				return "", ErrClosedByPeer
			default:
				return "", fmt.Errorf("%w: %v", ErrBrokenTransport, err)
			}
		}

		text := acc.String()
		if headerEnd < 0 && strings.Trim(text, LineTerminator) == "" {
			// blank lines between frames
			acc.Reset()
			continue
		}
		if !strings.HasSuffix(text, FrameTerminator) {
			continue
		}

		if headerEnd < 0 {
			headerEnd = len(text)
			if !headerBlockHasBody(text) {
				return text, nil
			}
			continue
		}
		if len(text)-len(FrameTerminator) >= headerEnd {
			return text, nil
		}
	}
}

func headerBlockHasBody(headerBlock string) bool {
	for _, line := range strings.Split(headerBlock, LineTerminator) {
		if h, err := ParseHeader(line); err == nil {
			if _, ok := h.(WithMessage); ok {
				return true
			}
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
