// Package events carries broker activity (joins, leaves, posted messages)
// to observers that live outside the connection fan-out path.
package events

import "context"

// Topics published by the broker.
const (
	TopicUserJoined    = "chat.user.joined"
	TopicUserLeft      = "chat.user.left"
	TopicMessagePosted = "chat.message.posted"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the kind of event, e.g. TopicUserJoined.
	Topic string
	// Username identifies the user the event concerns.
	Username string
	// Payload holds the message text for TopicMessagePosted.
	Payload []byte
	// Metadata holds optional key/value context such as the entry id.
	Metadata map[string]string
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe starts delivering messages for topic to handler in the
	// background and returns once the subscription is active.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is both ends of an event bus.
type Bus interface {
	Publisher
	Subscriber
}

// Discard is a Publisher that drops every message.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Message) error { return nil }
func (discard) Close() error                           { return nil }
