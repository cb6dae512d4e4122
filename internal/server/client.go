// Package server drives individual broker connections: the authentication
// handshake, the ingest and fan-out loops, and exactly-once cleanup.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/termchat/internal/broker"
	"github.com/Tyrowin/termchat/internal/history"
	"github.com/Tyrowin/termchat/internal/protocol"
)

// ConnState is the lifecycle state of a Client.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticating
	StateActive
	StateDisconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int32(s))
}

// Client represents one broker connection. It owns the transport, the
// authenticated username and the fan-out cursor; none of them are shared.
type Client struct {
	transport    Transport
	broker       *broker.State
	addr         string
	pollInterval time.Duration
	authRetries  int
	rateLimiter  *rateLimiter
	rateLimit    RateLimitConfig
	logger       *slog.Logger

	username string
	// lastReadEntryID is the fan-out cursor into the broker history.
	lastReadEntryID string

	state       atomic.Int32
	cleanupOnce sync.Once
}

// NewClient creates a Client for an accepted transport.
func NewClient(t Transport, b *broker.State, cfg Config, logger *slog.Logger) *Client {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = slog.Default()
	}
	addr := t.RemoteAddr()

	return &Client{
		transport:    t,
		broker:       b,
		addr:         addr,
		pollInterval: cfg.PollInterval,
		authRetries:  cfg.AuthMaxRetries,
		rateLimiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:    cfg.RateLimit,
		logger:       logger.With("addr", addr),
	}
}

// State reports the current lifecycle state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Username returns the authenticated username, or "" before authentication.
func (c *Client) Username() string {
	return c.username
}

func (c *Client) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Serve runs the connection to completion: handshake, then concurrent
// ingest and fan-out until the peer goes away, then cleanup.
func (c *Client) Serve() {
	defer c.disconnect()

	c.logger.Info("Connection established")
	c.setState(StateAuthenticating)

	if err := c.authenticate(); err != nil {
		c.logger.Info("Authentication failed", "error", err)
		return
	}

	c.setState(StateActive)

	done := make(chan struct{})
	go c.ingest(done)
	c.fanOut(done)
}

// authenticate reads the first frame and registers its username.
func (c *Client) authenticate() error {
	frame, err := c.transport.ReadFrame(c.authRetries)
	if err != nil {
		return fmt.Errorf("read handshake: %w", err)
	}

	signal, err := protocol.Decode(frame)
	if err != nil {
		return c.denyAuth(err)
	}
	if signal.Type != protocol.SignalConnection {
		return c.denyAuth(fmt.Errorf("unexpected signal type %s", signal.Type))
	}
	if signal.Username == "" {
		return c.denyAuth(broker.ErrEmptyUsername)
	}
	if err := c.broker.Register(signal.Username, c.addr); err != nil {
		return c.denyAuth(err)
	}

	c.username = signal.Username
	c.logger = c.logger.With("username", c.username)

	reply := protocol.Signal{Type: protocol.SignalConnection, AuthStatus: protocol.AuthAccepted}
	if err := c.transport.WriteFrame(protocol.Encode(reply)); err != nil {
		return fmt.Errorf("send auth reply: %w", err)
	}
	return nil
}

func (c *Client) denyAuth(cause error) error {
	reply := protocol.Signal{Type: protocol.SignalConnection, AuthStatus: protocol.AuthDenied}
	if err := c.transport.WriteFrame(protocol.Encode(reply)); err != nil {
		c.logger.Debug("Could not send auth denial", "error", err)
	}
	return fmt.Errorf("%w: %w", ErrAuthRejected, cause)
}

// ingest reads frames until the transport fails and closes done on exit.
func (c *Client) ingest(done chan<- struct{}) {
	defer close(done)

	for {
		frame, err := c.transport.ReadFrame(0)
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.processMessage(frame); err != nil {
			c.logger.Warn("Dropping invalid message", "error", err)
		}
	}
}

// handleReadError logs why the ingest loop is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, protocol.ErrClosedByPeer):
		c.logger.Info("Client disconnected")
	case errors.Is(err, protocol.ErrFrameTooLarge):
		c.logger.Warn("Frame exceeded maximum size", "error", err)
	case isExpectedCloseError(err):
		c.logger.Info("Client connection closed", "error", err)
	default:
		c.logger.Warn("Read error", "error", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the frame should be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("Rate limit exceeded; discarding frame",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one ingest frame and commits it to the history.
func (c *Client) processMessage(frame string) error {
	signal, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	if signal.Type != protocol.SignalNewMessage {
		return fmt.Errorf("%w: unexpected signal type %s", ErrIncomingMessage, signal.Type)
	}
	if !signal.WithMessage {
		return fmt.Errorf("%w: missing body", ErrIncomingMessage)
	}
	if signal.Username == "" {
		return fmt.Errorf("%w: missing username", ErrIncomingMessage)
	}
	if signal.Username != c.username {
		c.logger.Warn("Message username does not match session; using session username", "claimed", signal.Username)
	}

	entry, err := c.broker.Post(c.username, strings.TrimSpace(signal.Message))
	if err != nil {
		return err
	}
	c.logger.Debug("Message received", "entry_id", entry.ID)
	return nil
}

// fanOut polls the shared history and writes new entries until done closes.
func (c *Client) fanOut(done <-chan struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var pingC <-chan time.Time
	p, canPing := c.transport.(pinger)
	if canPing {
		pingTicker := time.NewTicker(pingPeriod)
		defer pingTicker.Stop()
		pingC = pingTicker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.flushHistory(); err != nil {
				c.abort("Write failed", err, done)
				return
			}
		case <-pingC:
			if err := p.Ping(); err != nil {
				c.abort("Ping failed", err, done)
				return
			}
		}
	}
}

// abort closes the transport so ingest ends, then waits for it.
func (c *Client) abort(reason string, err error, done <-chan struct{}) {
	c.logger.Info(reason, "error", err)
	c.closeTransport()
	<-done
}

// flushHistory writes every entry past the cursor and advances it.
func (c *Client) flushHistory() error {
	entries, next := c.broker.ReadSince(c.lastReadEntryID)
	for _, entry := range entries {
		if err := c.transport.WriteFrame(protocol.Encode(entrySignal(entry))); err != nil {
			return err
		}
	}
	c.lastReadEntryID = next
	return nil
}

func entrySignal(e history.Entry) protocol.Signal {
	return protocol.Signal{
		Type:          protocol.SignalNewMessage,
		Username:      e.Username,
		ServerMessage: e.FromServer,
		WithMessage:   true,
		Message:       e.Message,
	}
}

// disconnect runs cleanup exactly once.
func (c *Client) disconnect() {
	c.cleanupOnce.Do(func() {
		c.setState(StateDisconnecting)
		if c.username != "" {
			c.broker.Unregister(c.username)
		}
		c.closeTransport()
		c.setState(StateClosed)
		c.logger.Info("Connection closed")
	})
}

// closeTransport safely closes the transport with proper error handling
func (c *Client) closeTransport() {
	if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("Error closing transport", "error", err)
	}
}
