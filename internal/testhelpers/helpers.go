// Package testhelpers provides utilities shared by the broker and client
// tests: a raw protocol peer that speaks frames over any net.Conn, and HTTP
// response assertions.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/termchat/internal/protocol"
)

const (
	// DefaultTimeout bounds every blocking read a Peer performs.
	DefaultTimeout = 2 * time.Second

	pollInterval = 20 * time.Millisecond
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that is closed when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// Peer drives one side of a broker connection at the frame level.
type Peer struct {
	Conn   net.Conn
	reader *protocol.FrameReader
}

// NewPeer wraps conn. The caller owns conn.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		Conn:   conn,
		reader: protocol.NewFrameReader(conn, protocol.WithPollInterval(pollInterval)),
	}
}

// DialPeer connects to a TCP broker at addr. The connection is closed when
// the test ends.
func DialPeer(t *testing.T, addr string) *Peer {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewPeer(conn)
}

// SendRaw writes frame verbatim.
func (p *Peer) SendRaw(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, p.Conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)))
	_, err := p.Conn.Write([]byte(frame))
	require.NoError(t, err)
}

// Send encodes and writes s.
func (p *Peer) Send(t *testing.T, s protocol.Signal) {
	t.Helper()
	p.SendRaw(t, protocol.Encode(s))
}

// Login performs the handshake for username and returns the broker's reply.
func (p *Peer) Login(t *testing.T, username string) protocol.Signal {
	t.Helper()
	p.Send(t, protocol.Signal{Type: protocol.SignalConnection, Username: username})
	return p.Next(t)
}

// Say posts text as username.
func (p *Peer) Say(t *testing.T, username, text string) {
	t.Helper()
	p.Send(t, protocol.Signal{
		Type:        protocol.SignalNewMessage,
		Username:    username,
		WithMessage: true,
		Message:     text,
	})
}

// ReadFrame reads one raw frame, waiting at most DefaultTimeout.
func (p *Peer) ReadFrame() (string, error) {
	return p.reader.ReadFrame(int(DefaultTimeout / pollInterval))
}

// Next reads and decodes the next frame.
func (p *Peer) Next(t *testing.T) protocol.Signal {
	t.Helper()
	frame, err := p.ReadFrame()
	require.NoError(t, err)
	signal, err := protocol.Decode(frame)
	require.NoError(t, err)
	return signal
}

// Expect reads frames until one satisfies match and returns it.
func (p *Peer) Expect(t *testing.T, match func(protocol.Signal) bool) protocol.Signal {
	t.Helper()
	for {
		signal := p.Next(t)
		if match(signal) {
			return signal
		}
	}
}

// ExpectMessage waits for a user message with the given text.
func (p *Peer) ExpectMessage(t *testing.T, text string) protocol.Signal {
	t.Helper()
	return p.Expect(t, func(s protocol.Signal) bool {
		return !s.ServerMessage && s.Message == text
	})
}

// ExpectNotice waits for a server notice with the given text.
func (p *Peer) ExpectNotice(t *testing.T, text string) protocol.Signal {
	t.Helper()
	return p.Expect(t, func(s protocol.Signal) bool {
		return s.ServerMessage && s.Message == text
	})
}

// ExpectClosed reads until the broker closes the connection.
func (p *Peer) ExpectClosed(t *testing.T) {
	t.Helper()
	for {
		_, err := p.ReadFrame()
		if err == nil {
			continue
		}
		require.Truef(t, errors.Is(err, protocol.ErrClosedByPeer) || errors.Is(err, protocol.ErrBrokenTransport),
			"expected connection to be closed, got %v", err)
		return
	}
}
