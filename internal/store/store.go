// Package store persists relayed chat messages and assigns their ids.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 100

// ErrEmptyMessage is returned when a draft carries neither text nor a file.
var ErrEmptyMessage = errors.New("store: message has neither text nor file")

// Draft is a message that has not been persisted yet.
type Draft struct {
	SenderID    string
	RecipientID string
	Text        string
	FileURL     string
}

// Validate checks the fields every backend requires.
func (d Draft) Validate() error {
	if d.SenderID == "" || d.RecipientID == "" {
		return errors.New("store: sender and recipient are required")
	}
	if strings.TrimSpace(d.Text) == "" && d.FileURL == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Message is a persisted message. ID is assigned by the backend.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender"`
	RecipientID string    `json:"recipient"`
	Text        string    `json:"text,omitempty"`
	FileURL     string    `json:"fileUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Persister stores a draft and returns it with its assigned id.
type Persister interface {
	Persist(ctx context.Context, d Draft) (Message, error)
}

// MessageStore is the full backend contract used by the server process.
type MessageStore interface {
	Persister
	// History returns up to limit messages exchanged between a and b,
	// oldest first.
	History(ctx context.Context, a, b string, limit int) ([]Message, error)
	Close(ctx context.Context) error
}

// StoreError wraps a backend failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: errors.WithStack(err)}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}

// conversationKey is symmetric in its arguments.
func conversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
