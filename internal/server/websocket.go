// Package server carries signal frames over WebSocket connections: one text
// message holds exactly one frame.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/termchat/internal/protocol"
)

const pingPeriod = 54 * time.Second

type wsTransport struct {
	conn         *websocket.Conn
	addr         string
	pollInterval time.Duration
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewWebSocketTransport wraps an upgraded WebSocket connection.
func NewWebSocketTransport(conn *websocket.Conn, addr string, cfg Config) Transport {
	conn.SetReadLimit(int64(cfg.MaxFrameSize))
	return &wsTransport{
		conn:         conn,
		addr:         addr,
		pollInterval: cfg.AuthPollInterval,
		writeTimeout: cfg.WriteTimeout,
	}
}

// ReadFrame reads one text message. A gorilla connection cannot resume after
// a read deadline fires, so a bounded read arms a single deadline covering
// every attempt.
func (t *wsTransport) ReadFrame(maxRetries int) (string, error) {
	deadline := time.Time{}
	if maxRetries > 0 {
		deadline = time.Now().Add(t.pollInterval * time.Duration(maxRetries))
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", classifyWebSocketError(err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		return string(data), nil
	}
}

func classifyWebSocketError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %v", protocol.ErrFrameTooLarge, err)
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", protocol.ErrAborted, err)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return protocol.ErrClosedByPeer
	default:
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
}

func (t *wsTransport) WriteFrame(frame string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	return nil
}

// Ping sends a keepalive control frame.
func (t *wsTransport) Ping() error {
	if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}
