// Package server abstracts the byte transports a connection handler can run
// on, so TCP sockets and WebSocket connections share one state machine.
package server

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/termchat/internal/protocol"
)

// Transport carries whole frames between the broker and one peer. ReadFrame
// and WriteFrame may be called concurrently with each other, Close may be
// called concurrently with anything and more than once.
type Transport interface {
	// ReadFrame returns the next frame. maxRetries <= 0 blocks indefinitely.
	ReadFrame(maxRetries int) (string, error)
	WriteFrame(frame string) error
	Close() error
	RemoteAddr() string
}

// pinger is implemented by transports that need keepalive traffic.
type pinger interface {
	Ping() error
}

type tcpTransport struct {
	conn         net.Conn
	reader       *protocol.FrameReader
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewTCPTransport wraps an accepted TCP connection.
func NewTCPTransport(conn net.Conn, cfg Config) Transport {
	return &tcpTransport{
		conn: conn,
		reader: protocol.NewFrameReader(conn,
			protocol.WithPollInterval(cfg.AuthPollInterval),
			protocol.WithMaxFrameSize(cfg.MaxFrameSize),
		),
		writeTimeout: cfg.WriteTimeout,
	}
}

func (t *tcpTransport) ReadFrame(maxRetries int) (string, error) {
	return t.reader.ReadFrame(maxRetries)
}

func (t *tcpTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
		}
	}
	if _, err := io.WriteString(t.conn, frame); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	return nil
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *tcpTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
