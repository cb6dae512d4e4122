package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Tyrowin/termchat/internal/events"
)

// Stats counts broker events delivered over the event bus.
type Stats struct {
	joins    atomic.Uint64
	leaves   atomic.Uint64
	messages atomic.Uint64
	logger   *slog.Logger
}

// StatsSnapshot is the JSON document served on /stats.
type StatsSnapshot struct {
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	HistoryLen  int    `json:"history_len"`
	Joins       uint64 `json:"joins"`
	Leaves      uint64 `json:"leaves"`
	Messages    uint64 `json:"messages"`
}

// NewStats creates an empty counter set.
func NewStats(logger *slog.Logger) *Stats {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{logger: logger}
}

// Subscribe attaches the counters to every broker topic. Subscriptions end
// when ctx is cancelled or the bus is closed.
func (s *Stats) Subscribe(ctx context.Context, sub events.Subscriber) error {
	for _, topic := range []string{events.TopicUserJoined, events.TopicUserLeft, events.TopicMessagePosted} {
		if err := sub.Subscribe(ctx, topic, s.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (s *Stats) handle(_ context.Context, msg events.Message) error {
	switch msg.Topic {
	case events.TopicUserJoined:
		s.joins.Add(1)
		s.logger.Info("User joined", "username", msg.Username)
	case events.TopicUserLeft:
		s.leaves.Add(1)
		s.logger.Info("User left", "username", msg.Username)
	case events.TopicMessagePosted:
		s.messages.Add(1)
		s.logger.Debug("Message posted", "username", msg.Username, "entry_id", msg.Metadata["entry_id"])
	default:
		return fmt.Errorf("unexpected topic %q", msg.Topic)
	}
	return nil
}

// Joins returns the number of join events seen.
func (s *Stats) Joins() uint64 { return s.joins.Load() }

// Leaves returns the number of leave events seen.
func (s *Stats) Leaves() uint64 { return s.leaves.Load() }

// Messages returns the number of posted messages seen.
func (s *Stats) Messages() uint64 { return s.messages.Load() }
