// Package broker holds the process-wide chat state shared by every
// connection: the registry of authenticated users and the history buffer
// their fan-out loops read from.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/termchat/internal/events"
	"github.com/Tyrowin/termchat/internal/history"
)

var (
	// ErrUsernameTaken is returned by Register for a name already in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmptyUsername is returned when a username is required but blank.
	ErrEmptyUsername = errors.New("username is empty")
	// ErrServerFull is returned by Register when MaxUsers is reached.
	ErrServerFull = errors.New("maximum number of users reached")
)

// UserRecord describes one authenticated user.
type UserRecord struct {
	Username    string    `json:"username"`
	PeerAddress string    `json:"peer_address"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Options configures a State.
type Options struct {
	// MaxUsers caps the registry size. Zero means unlimited.
	MaxUsers int
	// Events receives join, leave and message events. Nil disables them.
	Events events.Publisher
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// NewID generates entry ids. Defaults to random UUIDs.
	NewID func() string
}

// State is the shared broker state. A single *State is created at startup
// and handed to every connection handler.
type State struct {
	mu       sync.Mutex
	users    map[string]UserRecord
	history  *history.Buffer
	maxUsers int
	events   events.Publisher
	logger   *slog.Logger
	newID    func() string
}

// New creates an empty State.
func New(opts Options) *State {
	s := &State{
		users:    make(map[string]UserRecord),
		history:  history.NewBuffer(),
		maxUsers: opts.MaxUsers,
		events:   opts.Events,
		logger:   opts.Logger,
		newID:    opts.NewID,
	}
	if s.events == nil {
		s.events = events.Discard
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Register adds username to the registry and appends a join notice.
// Usernames are compared case-sensitively.
func (s *State) Register(username, peerAddress string) error {
	if username == "" {
		return ErrEmptyUsername
	}

	s.mu.Lock()
	if _, exists := s.users[username]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUsernameTaken, username)
	}
	if s.maxUsers > 0 && len(s.users) >= s.maxUsers {
		s.mu.Unlock()
		return fmt.Errorf("%w (%d)", ErrServerFull, s.maxUsers)
	}
	s.users[username] = UserRecord{
		Username:    username,
		PeerAddress: peerAddress,
		JoinedAt:    time.Now(),
	}
	notice := s.appendLocked("", username+" joined the chat!", true)
	total := len(s.users)
	s.mu.Unlock()

	s.logger.Info("User registered", "username", username, "addr", peerAddress, "total_users", total)
	s.publish(events.TopicUserJoined, username, notice)
	return nil
}

// Unregister removes username and appends a leave notice. It is a no-op
// for unknown usernames and reports whether a record was removed.
func (s *State) Unregister(username string) bool {
	s.mu.Lock()
	if _, exists := s.users[username]; !exists {
		s.mu.Unlock()
		return false
	}
	delete(s.users, username)
	notice := s.appendLocked("", username+" left the chat!", true)
	total := len(s.users)
	s.mu.Unlock()

	s.logger.Info("User unregistered", "username", username, "total_users", total)
	s.publish(events.TopicUserLeft, username, notice)
	return true
}

// Post appends a user message to the history.
func (s *State) Post(username, message string) (history.Entry, error) {
	if username == "" {
		return history.Entry{}, ErrEmptyUsername
	}

	s.mu.Lock()
	entry := s.appendLocked(username, message, false)
	s.mu.Unlock()

	s.publish(events.TopicMessagePosted, username, entry)
	return entry, nil
}

// ReadSince returns history entries after cursor; see history.Buffer.ReadSince.
func (s *State) ReadSince(cursor string) ([]history.Entry, string) {
	return s.history.ReadSince(cursor)
}

// Snapshot returns a copy of the retained history, oldest first.
func (s *State) Snapshot() []history.Entry {
	return s.history.Snapshot()
}

// HistoryLen reports how many entries the history currently retains.
func (s *State) HistoryLen() int {
	return s.history.Len()
}

// IsRegistered reports whether username is currently registered.
func (s *State) IsRegistered(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[username]
	return ok
}

// Users returns a snapshot of the registry sorted by username.
func (s *State) Users() []UserRecord {
	s.mu.Lock()
	users := make([]UserRecord, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

func (s *State) appendLocked(username, message string, fromServer bool) history.Entry {
	entry := history.Entry{
		ID:         s.newID(),
		Username:   username,
		Message:    message,
		FromServer: fromServer,
	}
	s.history.Append(entry)
	return entry
}

func (s *State) publish(topic, username string, entry history.Entry) {
	msg := events.Message{
		Topic:    topic,
		Username: username,
		Payload:  []byte(entry.Message),
		Metadata: map[string]string{"entry_id": entry.ID},
	}
	if err := s.events.Publish(context.Background(), msg); err != nil {
		s.logger.Warn("Failed to publish broker event", "topic", topic, "error", err)
	}
}
