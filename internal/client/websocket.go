package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/termchat/internal/protocol"
)

// ConnectWebSocket dials the broker's WebSocket gateway (ws:// or wss:// URL)
// and authenticates as username. header may carry an Origin.
func ConnectWebSocket(ctx context.Context, url, username string, header http.Header, opts ...Option) (*Session, error) {
	o := buildOptions(opts)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return handshake(&wsConn{conn: conn, pollInterval: o.pollInterval}, username, o)
}

type wsConn struct {
	conn         *websocket.Conn
	pollInterval time.Duration
}

func (c *wsConn) readFrame(maxRetries int) (string, error) {
	deadline := time.Time{}
	if maxRetries > 0 {
		deadline = time.Now().Add(c.pollInterval * time.Duration(maxRetries))
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			switch {
			case errors.As(err, &closeErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return "", protocol.ErrClosedByPeer
			case errors.Is(err, os.ErrDeadlineExceeded):
				return "", fmt.Errorf("%w: %v", protocol.ErrAborted, err)
			default:
				return "", fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
			}
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (c *wsConn) writeFrame(frame string) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBrokenTransport, err)
	}
	return nil
}

func (c *wsConn) close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
