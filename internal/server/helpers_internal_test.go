package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/identity"
	"github.com/Tyrowin/relaychat/internal/store"
)

const frameTimeout = time.Second

// startTestHub runs a hub over an in-memory store and shuts it down when the
// test ends.
func startTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	hub := NewHub(mem, zap.NewNop())
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })
	return hub, mem
}

// configure applies cfg for the duration of the test.
func configure(t *testing.T, customize func(cfg *Config)) {
	t.Helper()
	cfg := NewConfig()
	customize(cfg)
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })
}

// connect registers a transport-less client, optionally bound to userID, and
// consumes the roster frame its registration produced.
func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(nil, hub, "test")
	if userID != "" {
		c.WithIdentity(identity.Identity{UserID: userID, DisplayName: "name-" + userID})
	}
	require.True(t, hub.Register(c))
	roster := nextRoster(t, c)
	if userID != "" {
		require.Contains(t, rosterIDs(roster), userID)
	}
	return c
}

func nextFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload, ok := <-c.GetSendChan():
		require.True(t, ok, "send channel closed")
		return payload
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func nextRoster(t *testing.T, c *Client) RosterFrame {
	t.Helper()
	var roster RosterFrame
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &roster))
	require.NotNil(t, roster.Online)
	return roster
}

func nextDelivery(t *testing.T, c *Client) DeliveryFrame {
	t.Helper()
	var d DeliveryFrame
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &d))
	require.NotEmpty(t, d.ID)
	return d
}

func expectNoFrame(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()
	select {
	case payload, ok := <-c.GetSendChan():
		if ok {
			t.Fatalf("unexpected frame: %s", payload)
		}
	case <-time.After(wait):
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func rosterIDs(r RosterFrame) []string {
	ids := make([]string, 0, len(r.Online))
	for _, id := range r.Online {
		ids = append(ids, id.UserID)
	}
	return ids
}
