package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/termchat/internal/protocol"
	"github.com/Tyrowin/termchat/internal/testhelpers"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.LogFormat = "xml"

	_, err := New(cfg, discardLogger())
	assert.Error(t, err)
}

func TestNewFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	_, err = New(cfg, discardLogger())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, err := New(testConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	peer := testhelpers.DialPeer(t, srv.Addr())
	require.Equal(t, protocol.AuthAccepted, peer.Login(t, "alice").AuthStatus)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	peer.ExpectClosed(t)
	assert.Empty(t, srv.Broker().Users())
	assert.Equal(t, 0, srv.Hub().Count())

	_, err = net.DialTimeout("tcp", srv.Addr(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestRunServesHTTP(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	srv := startTestServer(t, func(cfg *Config) { cfg.HTTPAddr = addr })

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, srv.Addr())
}
