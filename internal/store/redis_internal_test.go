package store

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// TestStreamKeyIsSymmetric verifies both directions share one stream.
func TestStreamKeyIsSymmetric(t *testing.T) {
	assert.Equal(t, streamKey("u1", "u2"), streamKey("u2", "u1"))
	assert.Equal(t, "relaychat:conv:u1:u2", streamKey("u2", "u1"))
}

// TestMessageFromStream verifies stream entries decode into messages.
func TestMessageFromStream(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := messageFromStream(redis.XMessage{
		ID: "1714564800000-0",
		Values: map[string]interface{}{
			"sender":    "u1",
			"recipient": "u2",
			"text":      "hi",
			"file":      "",
			"createdAt": "1714564800000",
		},
	})

	assert.Equal(t, Message{
		ID:          "1714564800000-0",
		SenderID:    "u1",
		RecipientID: "u2",
		Text:        "hi",
		CreatedAt:   created,
	}, msg)
}
