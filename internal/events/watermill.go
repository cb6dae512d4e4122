package events

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	metaKeyUsername = "username"
	metaKeyTopic    = "topic"
)

// WatermillBus implements Bus on top of watermill's in-memory GoChannel.
type WatermillBus struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger *slog.Logger
}

// NewWatermillBus creates an in-process bus. Publishing never waits for
// subscribers to acknowledge.
func NewWatermillBus(logger *slog.Logger) *WatermillBus {
	if logger == nil {
		logger = slog.Default()
	}
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 128},
		newSlogAdapter(logger.With("component", "watermill")),
	)

	return &WatermillBus{
		pub:    goChannel,
		sub:    goChannel,
		logger: logger,
	}
}

func toWatermill(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	wmMsg.Metadata.Set(metaKeyUsername, msg.Username)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return wmMsg
}

func fromWatermill(wmMsg *message.Message) Message {
	metadata := make(map[string]string, len(wmMsg.Metadata))
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUsername && k != metaKeyTopic {
			metadata[k] = v
		}
	}

	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		Username: wmMsg.Metadata.Get(metaKeyUsername),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements Publisher.
func (b *WatermillBus) Publish(_ context.Context, msg Message) error {
	return b.pub.Publish(msg.Topic, toWatermill(msg))
}

// Subscribe implements Subscriber.
func (b *WatermillBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			if err := handler(ctx, fromWatermill(wmMsg)); err != nil {
				b.logger.Error("Failed to handle event", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				wmMsg.Nack()
				continue
			}
			wmMsg.Ack()
		}
		b.logger.Debug("Event subscription ended", "topic", topic)
	}()

	return nil
}

// Close shuts the bus down and ends every subscription.
func (b *WatermillBus) Close() error {
	return b.sub.Close()
}
