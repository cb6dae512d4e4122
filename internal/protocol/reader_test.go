package protocol

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReadFrameSequence verifies that consecutive frames on one stream are
// split exactly at their boundaries.
func TestReadFrameSequence(t *testing.T) {
	first := Signal{Type: SignalConnection, Username: "alice"}
	second := Signal{Type: SignalNewMessage, Username: "alice", WithMessage: true, Message: "one\r\ntwo"}
	third := Signal{Type: SignalNewMessage, Username: "alice", WithMessage: true}

	stream := Encode(first) + Encode(second) + Encode(third)
	fr := NewFrameReader(strings.NewReader(stream))

	for _, want := range []Signal{first, second, third} {
		frame, err := fr.ReadFrame(0)
		require.NoError(t, err)

		got, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := fr.ReadFrame(0)
	assert.ErrorIs(t, err, ErrClosedByPeer)
}

// TestReadFrameSkipsStrayTerminators verifies that extra blank lines between
// frames, as sent by older peers, are not mistaken for frames.
func TestReadFrameSkipsStrayTerminators(t *testing.T) {
	stream := "SIGNAL_TYPE: CONNECTION\r\nUSERNAME: bob\r\n\r\n\r\n" +
		"\r\nSIGNAL_TYPE: NEW_MESSAGE\r\nUSERNAME: bob\r\nWITH_MESSAGE\r\n\r\nyo\r\n\r\n"
	fr := NewFrameReader(strings.NewReader(stream))

	frame, err := fr.ReadFrame(0)
	require.NoError(t, err)
	s, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, SignalConnection, s.Type)

	frame, err = fr.ReadFrame(0)
	require.NoError(t, err)
	s, err = Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "yo", s.Message)
}

// TestReadFrameClosedByPeer verifies that a closed stream is reported even
// when a partial frame was buffered.
func TestReadFrameClosedByPeer(t *testing.T) {
	fr := NewFrameReader(strings.NewReader("SIGNAL_TYPE: CONN"))
	_, err := fr.ReadFrame(0)
	assert.ErrorIs(t, err, ErrClosedByPeer)

	fr = NewFrameReader(strings.NewReader(""))
	_, err = fr.ReadFrame(5)
	assert.ErrorIs(t, err, ErrClosedByPeer)
}

// TestReadFrameAbortsAfterRetries verifies the bounded handshake read.
func TestReadFrameAbortsAfterRetries(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	fr := NewFrameReader(server, WithPollInterval(10*time.Millisecond))

	start := time.Now()
	_, err := fr.ReadFrame(3)
	require.ErrorIs(t, err, ErrAborted)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

// TestReadFrameSurvivesStallMidLine verifies that bytes read before a
// timeout are kept and completed by later reads.
func TestReadFrameSurvivesStallMidLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = io.WriteString(client, "SIGNAL_TYPE: CONN")
		time.Sleep(40 * time.Millisecond)
		_, _ = io.WriteString(client, "ECTION\r\nUSERNAME: dave\r\n\r\n")
	}()

	fr := NewFrameReader(server, WithPollInterval(10*time.Millisecond))
	frame, err := fr.ReadFrame(50)
	require.NoError(t, err)

	s, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, Signal{Type: SignalConnection, Username: "dave"}, s)
}

// TestReadFrameUnboundedClearsDeadline verifies that an unbounded read
// waits past the poll interval.
func TestReadFrameUnboundedClearsDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = io.WriteString(client, Encode(Signal{Type: SignalNewMessage, WithMessage: true, Message: "late"}))
	}()

	fr := NewFrameReader(server, WithPollInterval(5*time.Millisecond))
	frame, err := fr.ReadFrame(0)
	require.NoError(t, err)

	s, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "late", s.Message)
}

// TestReadFrameTooLarge verifies the frame size limit.
func TestReadFrameTooLarge(t *testing.T) {
	body := strings.Repeat("x", 200)
	stream := Encode(Signal{Type: SignalNewMessage, WithMessage: true, Message: body})

	fr := NewFrameReader(strings.NewReader(stream), WithMaxFrameSize(64))
	_, err := fr.ReadFrame(0)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.True(t, IsDisconnect(err))
}

// TestReadFrameBrokenTransport verifies classification of other I/O faults.
func TestReadFrameBrokenTransport(t *testing.T) {
	server, client := net.Pipe()
	require.NoError(t, server.Close())
	defer client.Close()

	fr := NewFrameReader(server)
	_, err := fr.ReadFrame(0)
	require.Error(t, err)
	assert.True(t, IsDisconnect(err))
}
