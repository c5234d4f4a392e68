// Package transcript keeps the ordered chat history for one UI instance.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript record. Records are append-only; the store never
// rewrites an entry after it is handed out.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures the transcript store.
type Config struct {
	// MaxMessages is the maximum number of records to retain (default: 200).
	// Older records are trimmed; the UI keeps its own scrollback.
	MaxMessages int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxMessages: 200}
}

// Store holds the conversation transcript.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	config   Config
}

// NewStore creates a transcript store with the given config.
func NewStore(config Config) *Store {
	if config.MaxMessages <= 0 {
		config.MaxMessages = 200
	}
	return &Store{
		messages: make([]Message, 0, config.MaxMessages),
		config:   config,
	}
}

// Append records a message and returns it with its assigned ID.
func (s *Store) Append(role Role, text string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if len(s.messages) > s.config.MaxMessages {
		s.messages = s.messages[len(s.messages)-s.config.MaxMessages:]
	}
	s.mu.Unlock()

	return msg
}

// Messages returns a copy of all retained messages in order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Message, len(s.messages))
	copy(result, s.messages)
	return result
}

// Recent returns up to n of the newest messages in order.
func (s *Store) Recent(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	result := make([]Message, len(s.messages)-start)
	copy(result, s.messages[start:])
	return result
}

// LatestUser returns the newest user message, or false when none exists.
func (s *Store) LatestUser() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return s.messages[i], true
		}
	}
	return Message{}, false
}

// Len returns the number of retained messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset clears the transcript.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, 0, s.config.MaxMessages)
}
