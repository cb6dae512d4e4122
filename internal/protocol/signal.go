// Package protocol implements the framed text protocol spoken between
// termchat clients and the broker: the Signal model, its line-oriented
// codec, and a reader that assembles exactly one frame per call.
package protocol

import (
	"fmt"
	"strings"
)

const (
	// LineTerminator ends every header line.
	LineTerminator = "\r\n"
	// FrameTerminator ends a frame (and separates headers from a body).
	FrameTerminator = "\r\n\r\n"
)

// Header names as they appear on the wire.
const (
	headerUsername      = "USERNAME"
	headerAuthStatus    = "AUTH_STATUS"
	headerSignalType    = "SIGNAL_TYPE"
	headerServerMessage = "SERVER_MESSAGE"
	headerWithMessage   = "WITH_MESSAGE"
)

// SignalType identifies the purpose of a signal.
type SignalType string

const (
	SignalConnection SignalType = "CONNECTION"
	SignalNewMessage SignalType = "NEW_MESSAGE"
)

// ParseSignalType converts a wire token into a SignalType.
func ParseSignalType(s string) (SignalType, error) {
	switch SignalType(s) {
	case SignalConnection, SignalNewMessage:
		return SignalType(s), nil
	}
	return "", fmt.Errorf("%w: unknown signal type %q", ErrParse, s)
}

// AuthStatus is the broker's answer to a CONNECTION signal.
type AuthStatus string

const (
	AuthAccepted AuthStatus = "ACCEPTED"
	AuthDenied   AuthStatus = "DENIED"
)

// ParseAuthStatus converts a wire token into an AuthStatus.
func ParseAuthStatus(s string) (AuthStatus, error) {
	switch AuthStatus(s) {
	case AuthAccepted, AuthDenied:
		return AuthStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown auth status %q", ErrParse, s)
}

// Signal is one framed protocol message. Empty Username and AuthStatus mean
// the header is absent. Message is only meaningful when WithMessage is set.
type Signal struct {
	Username      string
	AuthStatus    AuthStatus
	Type          SignalType
	ServerMessage bool
	WithMessage   bool
	Message       string
}

// Header is one header line of a signal. The set of implementations is
// closed: Username, AuthStatusHeader, SignalTypeHeader, ServerMessage and
// WithMessage.
type Header interface {
	// String renders the header as a wire line including its terminator.
	String() string
	apply(s *Signal, body string)
}

// Username names the sending (or, on fan-out, the originating) user.
type Username string

// AuthStatusHeader carries the outcome of a handshake.
type AuthStatusHeader AuthStatus

// SignalTypeHeader carries the signal type.
type SignalTypeHeader SignalType

// ServerMessage marks a broker-generated notice.
type ServerMessage struct{}

// WithMessage marks that a raw body follows the header block.
type WithMessage struct{}

func (h Username) String() string {
	return headerUsername + ": " + string(h) + LineTerminator
}

func (h AuthStatusHeader) String() string {
	return headerAuthStatus + ": " + string(h) + LineTerminator
}

func (h SignalTypeHeader) String() string {
	return headerSignalType + ": " + string(h) + LineTerminator
}

func (ServerMessage) String() string { return headerServerMessage + LineTerminator }

func (WithMessage) String() string { return headerWithMessage + LineTerminator }

func (h Username) apply(s *Signal, _ string)         { s.Username = string(h) }
func (h AuthStatusHeader) apply(s *Signal, _ string) { s.AuthStatus = AuthStatus(h) }
func (h SignalTypeHeader) apply(s *Signal, _ string) { s.Type = SignalType(h) }
func (ServerMessage) apply(s *Signal, _ string)      { s.ServerMessage = true }

func (WithMessage) apply(s *Signal, body string) {
	s.WithMessage = true
	s.Message = body
}

// NewSignal assembles a Signal from a list of headers. body is used only
// when a WithMessage header is present.
func NewSignal(headers []Header, body string) Signal {
	var s Signal
	for _, h := range headers {
		h.apply(&s, body)
	}
	return s
}

// ParseHeader parses a single header line (without its terminator).
// Lines that are not recognised headers yield an ErrParse error.
func ParseHeader(line string) (Header, error) {
	name, value, hasValue := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	switch name {
	case headerServerMessage:
		return ServerMessage{}, nil
	case headerWithMessage:
		return WithMessage{}, nil
	}

	if !hasValue {
		return nil, fmt.Errorf("%w: unrecognised header line %q", ErrParse, line)
	}

	switch name {
	case headerUsername:
		return Username(value), nil
	case headerAuthStatus:
		status, err := ParseAuthStatus(value)
		if err != nil {
			return nil, err
		}
		return AuthStatusHeader(status), nil
	case headerSignalType:
		typ, err := ParseSignalType(value)
		if err != nil {
			return nil, err
		}
		return SignalTypeHeader(typ), nil
	}
	return nil, fmt.Errorf("%w: unrecognised header line %q", ErrParse, line)
}

// Headers returns the headers of s in wire order.
func (s Signal) Headers() []Header {
	headers := make([]Header, 0, 5)
	if s.Username != "" {
		headers = append(headers, Username(s.Username))
	}
	if s.AuthStatus != "" {
		headers = append(headers, AuthStatusHeader(s.AuthStatus))
	}
	if s.Type != "" {
		headers = append(headers, SignalTypeHeader(s.Type))
	}
	if s.ServerMessage {
		headers = append(headers, ServerMessage{})
	}
	if s.WithMessage {
		headers = append(headers, WithMessage{})
	}
	return headers
}
