// Package server defines shared error values and utility helpers that are
// reused across connection, hub and transport logic.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrAuthRejected reports a failed handshake: bad first frame, wrong
	// signal type, missing username or a registry rejection.
	ErrAuthRejected = errors.New("auth connection error")
	// ErrIncomingMessage reports a NEW_MESSAGE frame lacking a body or a
	// username. Such frames are dropped.
	ErrIncomingMessage = errors.New("incoming message error")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
