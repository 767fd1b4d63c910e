package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps messages in process. It is the default backend and the one
// used by tests.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Persist implements Persister.
func (m *Memory) Persist(_ context.Context, d Draft) (Message, error) {
	if err := d.Validate(); err != nil {
		return Message{}, wrapErr("persist", err)
	}
	msg := Message{
		ID:          uuid.NewString(),
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Text:        d.Text,
		FileURL:     d.FileURL,
		CreatedAt:   m.now().UTC(),
	}

	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return msg, nil
}

// History implements MessageStore.
func (m *Memory) History(_ context.Context, a, b string, limit int) ([]Message, error) {
	limit = normalizeLimit(limit)
	key := conversationKey(a, b)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.messages[i]
		if conversationKey(msg.SenderID, msg.RecipientID) == key {
			out = append(out, msg)
		}
	}
	reverse(out)
	return out, nil
}

// All returns a copy of every stored message in insertion order.
func (m *Memory) All() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Close implements MessageStore.
func (m *Memory) Close(context.Context) error {
	return nil
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
