// Package notify provides table.Notifier implementations.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Logger writes notifications to a slog logger at warn level.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a notifier backed by log, or slog.Default when nil.
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log}
}

// NotifyError logs message.
func (l *Logger) NotifyError(message string) {
	l.log.Warn("table notification", "message", message)
}

// Message is one buffered notification.
type Message struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Buffer keeps the most recent notifications until drained. A web session
// drains it after each request so the page can show what went wrong.
type Buffer struct {
	mu       sync.Mutex
	messages []Message
	limit    int
}

// NewBuffer returns a buffer holding at most limit messages; older ones are
// dropped first. A limit below 1 means 50.
func NewBuffer(limit int) *Buffer {
	if limit < 1 {
		limit = 50
	}
	return &Buffer{limit: limit}
}

// NotifyError appends message.
func (b *Buffer) NotifyError(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, Message{Text: message, At: time.Now()})
	if over := len(b.messages) - b.limit; over > 0 {
		b.messages = append([]Message(nil), b.messages[over:]...)
	}
}

// Drain returns and clears the buffered messages.
func (b *Buffer) Drain() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.messages
	b.messages = nil
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Notifier matches table.Notifier without importing it.
type Notifier interface {
	NotifyError(message string)
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

// NotifyError forwards message to each notifier in order.
func (m Multi) NotifyError(message string) {
	for _, n := range m {
		n.NotifyError(message)
	}
}
