// Package client implements the peer side of the broker protocol: connect and
// authenticate, send messages, and receive the broadcast stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/termchat/internal/protocol"
)

var (
	// ErrAuthDenied is returned by Connect when the broker refuses the username.
	ErrAuthDenied = errors.New("authentication denied")
	// ErrConnectionClosed is returned once the broker connection is gone.
	ErrConnectionClosed = errors.New("connection closed")
)

const (
	defaultPollInterval = time.Second
	defaultAuthRetries  = 25
)

// frameConn moves whole frames over some transport.
type frameConn interface {
	readFrame(maxRetries int) (string, error)
	writeFrame(frame string) error
	close() error
}

type options struct {
	pollInterval time.Duration
	authRetries  int
	logger       *slog.Logger
}

// Option customises Connect and ConnectWebSocket.
type Option func(*options)

// WithHandshakeTimeout bounds how long Connect waits for the auth reply,
// polling every pollInterval for at most retries attempts.
func WithHandshakeTimeout(pollInterval time.Duration, retries int) Option {
	return func(o *options) {
		if pollInterval > 0 {
			o.pollInterval = pollInterval
		}
		if retries > 0 {
			o.authRetries = retries
		}
	}
}

// WithLogger sets the logger used for dropped frames.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		pollInterval: defaultPollInterval,
		authRetries:  defaultAuthRetries,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session is an authenticated broker connection. SendMessage and
// ReceiveNext may be used from different goroutines.
type Session struct {
	username string
	conn     frameConn
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Connect dials a TCP broker and authenticates as username.
func Connect(ctx context.Context, address, username string, opts ...Option) (*Session, error) {
	o := buildOptions(opts)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	return handshake(newTCPConn(conn, o.pollInterval), username, o)
}

func handshake(conn frameConn, username string, o options) (*Session, error) {
	hello := protocol.Signal{Type: protocol.SignalConnection, Username: username}
	if err := conn.writeFrame(protocol.Encode(hello)); err != nil {
		_ = conn.close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	frame, err := conn.readFrame(o.authRetries)
	if err != nil {
		_ = conn.close()
		if errors.Is(err, protocol.ErrClosedByPeer) {
			return nil, fmt.Errorf("%w: %w", ErrAuthDenied, err)
		}
		return nil, fmt.Errorf("await auth reply: %w", err)
	}

	reply, err := protocol.Decode(frame)
	if err != nil {
		_ = conn.close()
		return nil, fmt.Errorf("decode auth reply: %w", err)
	}
	if reply.AuthStatus != protocol.AuthAccepted {
		_ = conn.close()
		return nil, ErrAuthDenied
	}

	return &Session{
		username: username,
		conn:     conn,
		logger:   o.logger.With("username", username),
	}, nil
}

// Username is the name the session authenticated with.
func (s *Session) Username() string {
	return s.username
}

// SendMessage posts text to the chat. Surrounding whitespace is trimmed and
// blank messages are not sent.
func (s *Session) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	frame := protocol.Encode(protocol.Signal{
		Type:        protocol.SignalNewMessage,
		Username:    s.username,
		WithMessage: true,
		Message:     text,
	})

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.writeFrame(frame); err != nil {
		return s.wrapTransportError(err)
	}
	return nil
}

// ReceiveNext blocks until the broker sends the next signal. Malformed frames
// are skipped.
func (s *Session) ReceiveNext() (protocol.Signal, error) {
	for {
		frame, err := s.conn.readFrame(0)
		if err != nil {
			return protocol.Signal{}, s.wrapTransportError(err)
		}

		signal, err := protocol.Decode(frame)
		if err != nil {
			s.logger.Debug("Skipping malformed frame", "error", err)
			continue
		}
		return signal, nil
	}
}

func (s *Session) wrapTransportError(err error) error {
	if protocol.IsDisconnect(err) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.close()
	})
	return s.closeErr
}

type tcpConn struct {
	conn   net.Conn
	reader *protocol.FrameReader
}

func newTCPConn(conn net.Conn, pollInterval time.Duration) *tcpConn {
	return &tcpConn{
		conn:   conn,
		reader: protocol.NewFrameReader(conn, protocol.WithPollInterval(pollInterval)),
	}
}

func (c *tcpConn) readFrame(maxRetries int) (string, error) {
	return c.reader.ReadFrame(maxRetries)
}

func (c *tcpConn) writeFrame(frame string) error {
	if _, err := c.conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	return nil
}

func (c *tcpConn) close() error {
	return c.conn.Close()
}
