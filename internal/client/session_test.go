package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/termchat/internal/protocol"
	"github.com/Tyrowin/termchat/internal/server"
	"github.com/Tyrowin/termchat/internal/testhelpers"
)

func startBroker(t *testing.T) (*server.Server, context.CancelFunc) {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.HTTPAddr = ""
	cfg.PollInterval = 5 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("broker did not stop")
		}
	})
	return srv, cancel
}

func connect(t *testing.T, addr, username string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testhelpers.DefaultTimeout)
	defer cancel()
	s, err := Connect(ctx, addr, username)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// receiveUntil returns the first signal carrying text.
func receiveUntil(t *testing.T, s *Session, text string) protocol.Signal {
	t.Helper()
	deadline := time.Now().Add(testhelpers.DefaultTimeout)
	for time.Now().Before(deadline) {
		sig, err := s.ReceiveNext()
		require.NoError(t, err)
		if sig.Message == text {
			return sig
		}
	}
	t.Fatalf("did not receive %q", text)
	return protocol.Signal{}
}

func TestConnectSendReceive(t *testing.T) {
	srv, _ := startBroker(t)

	alice := connect(t, srv.Addr(), "alice")
	assert.Equal(t, "alice", alice.Username())

	notice := receiveUntil(t, alice, "alice joined the chat!")
	assert.True(t, notice.ServerMessage)

	require.NoError(t, alice.SendMessage("  hello  "))
	msg := receiveUntil(t, alice, "hello")
	assert.Equal(t, "alice", msg.Username)
	assert.False(t, msg.ServerMessage)
}

func TestConnectDuplicateDenied(t *testing.T) {
	srv, _ := startBroker(t)
	connect(t, srv.Addr(), "alice")

	_, err := Connect(context.Background(), srv.Addr(), "alice")
	assert.ErrorIs(t, err, ErrAuthDenied)
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Connect(context.Background(), addr, "alice")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthDenied)
}

func TestConnectHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	_, err = Connect(context.Background(), ln.Addr().String(), "alice",
		WithHandshakeTimeout(10*time.Millisecond, 3))
	assert.ErrorIs(t, err, protocol.ErrAborted)
}

func TestReceiveNextSkipsMalformedFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := protocol.NewFrameReader(conn)
		if _, err := reader.ReadFrame(0); err != nil {
			return
		}
		_, _ = conn.Write([]byte(protocol.Encode(protocol.Signal{
			Type:       protocol.SignalConnection,
			AuthStatus: protocol.AuthAccepted,
		})))
		_, _ = conn.Write([]byte("GARBAGE\r\n\r\n"))
		_, _ = conn.Write([]byte(protocol.Encode(protocol.Signal{
			Type:        protocol.SignalNewMessage,
			Username:    "bob",
			WithMessage: true,
			Message:     "valid",
		})))
		_, _ = reader.ReadFrame(0)
	}()

	s := connect(t, ln.Addr().String(), "alice")
	sig, err := s.ReceiveNext()
	require.NoError(t, err)
	assert.Equal(t, "valid", sig.Message)
	assert.Equal(t, "bob", sig.Username)
}

func TestReceiveNextAfterBrokerStops(t *testing.T) {
	srv, stop := startBroker(t)
	alice := connect(t, srv.Addr(), "alice")
	receiveUntil(t, alice, "alice joined the chat!")

	stop()

	for {
		_, err := alice.ReceiveNext()
		if err != nil {
			assert.ErrorIs(t, err, ErrConnectionClosed)
			return
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := startBroker(t)
	alice := connect(t, srv.Addr(), "alice")

	require.NoError(t, alice.Close())
	assert.NoError(t, alice.Close())

	_, err := alice.ReceiveNext()
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, alice.SendMessage("too late"), ErrConnectionClosed)
}

func TestSendBlankMessageIsNoop(t *testing.T) {
	srv, _ := startBroker(t)
	alice := connect(t, srv.Addr(), "alice")
	receiveUntil(t, alice, "alice joined the chat!")

	require.NoError(t, alice.SendMessage("   "))
	require.NoError(t, alice.SendMessage("real"))

	sig := receiveUntil(t, alice, "real")
	assert.Equal(t, "alice", sig.Username)
	for _, e := range srv.Broker().Snapshot() {
		assert.NotEqual(t, "", strings.TrimSpace(e.Message))
	}
}

func TestConnectWebSocket(t *testing.T) {
	srv, _ := startBroker(t)
	httpSrv := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(httpSrv.Close)
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"

	tcp := connect(t, srv.Addr(), "alice")

	ws, err := ConnectWebSocket(context.Background(), url, "webby", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	require.NoError(t, ws.SendMessage("over websocket"))
	assert.Equal(t, "webby", receiveUntil(t, tcp, "over websocket").Username)

	require.NoError(t, tcp.SendMessage("over tcp"))
	assert.Equal(t, "alice", receiveUntil(t, ws, "over tcp").Username)

	_, err = ConnectWebSocket(context.Background(), url, "webby", nil)
	assert.ErrorIs(t, err, ErrAuthDenied)
}
