// Package server defines the wire frames exchanged with clients and the
// error types shared by the registry, relay, and hub.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/relaychat/internal/identity"
)

// InboundFrame is the JSON frame a client sends to address a message.
type InboundFrame struct {
	Recipient string   `json:"recipient"`
	Text      string   `json:"text,omitempty"`
	File      *FileRef `json:"file,omitempty"`

	// LegacyRecipient accepts the misspelled key older web clients send.
	LegacyRecipient string `json:"recipent,omitempty"`
}

// FileRef points at an already uploaded file.
type FileRef struct {
	URL string `json:"url"`
}

func (f InboundFrame) recipient() string {
	if f.Recipient != "" {
		return f.Recipient
	}
	return f.LegacyRecipient
}

func (f InboundFrame) fileURL() string {
	if f.File == nil {
		return ""
	}
	return strings.TrimSpace(f.File.URL)
}

// DeliveryFrame is pushed to every live connection of the recipient.
type DeliveryFrame struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	FileURL   string `json:"fileUrl,omitempty"`
}

// RosterFrame carries the online-roster snapshot.
type RosterFrame struct {
	Online []identity.Identity `json:"online"`
}

var (
	// ErrMalformedFrame marks an inbound frame that cannot be relayed.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnboundSender marks a frame from a connection without identity.
	ErrUnboundSender = errors.New("sender has no bound identity")
	// ErrDuplicateHandle is returned when a handle is registered twice.
	ErrDuplicateHandle = errors.New("connection handle already registered")
)

// DeliveryError reports that a single recipient connection could not
// accept an outbound payload.
type DeliveryError struct {
	Handle string
}

func (e *DeliveryError) Error() string {
	return "delivery to connection " + e.Handle + " failed: send queue full"
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
