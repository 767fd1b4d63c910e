package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/store"
)

// TestHubRegisterBroadcastsToEveryConnection verifies bound and unbound
// connections both receive the roster, and only bound ones appear in it.
func TestHubRegisterBroadcastsToEveryConnection(t *testing.T) {
	hub, _ := startTestHub(t)

	alice := connect(t, hub, "u1")
	anon := connect(t, hub, "")

	roster := nextRoster(t, alice)
	assert.Equal(t, []string{"u1"}, rosterIDs(roster))

	_, bound := anon.Identity()
	assert.False(t, bound)
	assert.Equal(t, 2, hub.Registry().Len())
	assert.Equal(t, int64(2), hub.RosterBroadcasts())
}

// TestHubRosterCollapsesDevices verifies two connections of one user yield a
// single roster entry carrying the display name.
func TestHubRosterCollapsesDevices(t *testing.T) {
	hub, _ := startTestHub(t)

	phone := connect(t, hub, "u1")
	connect(t, hub, "u1")

	roster := nextRoster(t, phone)
	require.Len(t, roster.Online, 1)
	assert.Equal(t, "u1", roster.Online[0].UserID)
	assert.Equal(t, "name-u1", roster.Online[0].DisplayName)
}

// TestHubUnregisterBroadcastsRoster verifies closing a connection removes
// its user from the next roster and closes its send queue.
func TestHubUnregisterBroadcastsRoster(t *testing.T) {
	hub, _ := startTestHub(t)

	alice := connect(t, hub, "u1")
	bob := connect(t, hub, "u2")
	drain(alice)

	hub.Unregister(alice)

	roster := nextRoster(t, bob)
	assert.Equal(t, []string{"u2"}, rosterIDs(roster))
	assert.Equal(t, 1, hub.Registry().Len())
	assert.Empty(t, hub.Registry().FilterByUserID("u1"))

	_, ok := <-alice.GetSendChan()
	assert.False(t, ok, "send queue should be closed after removal")
	assert.Equal(t, Dead, alice.LivenessState())
}

// TestHubDoubleUnregisterBroadcastsOnce verifies only an effective removal
// triggers a roster broadcast.
func TestHubDoubleUnregisterBroadcastsOnce(t *testing.T) {
	hub, _ := startTestHub(t)

	alice := connect(t, hub, "u1")
	bob := connect(t, hub, "u2")
	before := hub.RosterBroadcasts()

	hub.Unregister(alice)
	hub.Unregister(alice)

	// Events are handled in order, so by the time carol's roster arrives
	// both unregister requests have been processed.
	carol := connect(t, hub, "u3")
	assert.Equal(t, before+2, hub.RosterBroadcasts())

	drain(bob)
	expectNoFrame(t, carol, 50*time.Millisecond)
}

// TestHubLivenessEviction verifies a connection that stops answering pings
// is evicted with exactly one extra roster broadcast, while a connection
// that keeps answering stays.
func TestHubLivenessEviction(t *testing.T) {
	configure(t, func(cfg *Config) {
		cfg.Heartbeat = HeartbeatConfig{PingInterval: 60 * time.Millisecond, PongTimeout: 40 * time.Millisecond}
	})
	hub, _ := startTestHub(t)

	silent := connect(t, hub, "u1")
	chatty := connect(t, hub, "u2")

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				chatty.liveness.pong()
			}
		}
	}()

	// chatty sees silent's registration roster and then the eviction roster.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "silent connection was never evicted")
		roster := nextRoster(t, chatty)
		if len(roster.Online) == 1 {
			assert.Equal(t, []string{"u2"}, rosterIDs(roster))
			break
		}
	}

	assert.Equal(t, Dead, silent.LivenessState())
	assert.Equal(t, int64(3), hub.RosterBroadcasts())
	assert.Equal(t, 1, hub.Registry().Len())
	assert.NotEqual(t, Dead, chatty.LivenessState())
	assert.WithinDuration(t, time.Now(), chatty.LastPongAt(), time.Second)
}

// TestHubShutdownClosesClients verifies Shutdown drains the registry and
// closes every send queue.
func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(store.NewMemory(), zap.NewNop())
	go hub.Run()

	alice := connect(t, hub, "u1")
	drain(alice)

	require.NoError(t, hub.Shutdown(time.Second))
	assert.Equal(t, 0, hub.Registry().Len())

	_, ok := <-alice.GetSendChan()
	assert.False(t, ok)

	late := NewClient(nil, hub, "late")
	assert.False(t, hub.Register(late), "register after shutdown must be refused")
	hub.Unregister(late)
}
