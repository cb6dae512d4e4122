package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/Tyrowin/termchat/internal/broker"
)

// Listener accepts TCP connections and hands each one to the hub.
type Listener struct {
	ln     net.Listener
	cfg    Config
	hub    *Hub
	broker *broker.State
	logger *slog.Logger
}

// Listen binds the configured TCP address.
func Listen(cfg Config, hub *Hub, b *broker.State, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err)
	}
	return &Listener{ln: ln, cfg: cfg, hub: hub, broker: b, logger: logger}, nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	l.logger.Info("Broker listening", "addr", l.ln.Addr().String())

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				l.logger.Warn("Temporary accept error", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		client := NewClient(NewTCPTransport(conn, l.cfg), l.broker, l.cfg, l.logger)
		if !l.hub.Register(client) {
			_ = conn.Close()
			return nil
		}
	}
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}
