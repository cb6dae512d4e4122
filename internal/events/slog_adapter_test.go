package events

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	adapter := newSlogAdapter(logger).With(watermill.LogFields{"topic": "chat.user.joined"})
	adapter.Error("publish failed", errors.New("boom"), watermill.LogFields{"msg_id": "m1"})
	adapter.Trace("tracing", nil)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="publish failed"`)
	assert.Contains(t, out, "topic=chat.user.joined")
	assert.Contains(t, out, "msg_id=m1")
	assert.Contains(t, out, "error=boom")
	assert.Contains(t, out, "level=DEBUG msg=tracing")
}
