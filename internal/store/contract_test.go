package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/store"
)

// runContract exercises the behaviour every MessageStore must share. User
// ids are randomised so the suite can run against a shared database.
func runContract(t *testing.T, s store.MessageStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := "alice-" + uuid.NewString()
	bob := "bob-" + uuid.NewString()
	carol := "carol-" + uuid.NewString()

	first, err := s.Persist(ctx, store.Draft{SenderID: alice, RecipientID: bob, Text: "one"})
	require.NoError(t, err)
	second, err := s.Persist(ctx, store.Draft{SenderID: bob, RecipientID: alice, FileURL: "/uploads/two.png"})
	require.NoError(t, err)
	_, err = s.Persist(ctx, store.Draft{SenderID: alice, RecipientID: carol, Text: "elsewhere"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = s.Persist(ctx, store.Draft{SenderID: alice, RecipientID: bob})
	assert.ErrorIs(t, err, store.ErrEmptyMessage)

	history, err := s.History(ctx, bob, alice, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, "one", history[0].Text)
	assert.Equal(t, second.ID, history[1].ID)
	assert.Equal(t, "/uploads/two.png", history[1].FileURL)

	latest, err := s.History(ctx, alice, bob, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, second.ID, latest[0].ID)
}

// TestMemoryContract runs the shared contract against the in-memory store.
func TestMemoryContract(t *testing.T) {
	runContract(t, store.NewMemory())
}

// TestMongoContract runs the shared contract against MongoDB when
// MONGODB_URL points at a reachable server.
func TestMongoContract(t *testing.T) {
	uri := os.Getenv("MONGODB_URL")
	if uri == "" {
		t.Skip("MONGODB_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := store.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	s := store.NewMongo(client.Database("relaychat_test"))
	require.NoError(t, s.EnsureIndexes(ctx))
	runContract(t, s)
}

// TestRedisContract runs the shared contract against Redis when REDIS_ADDR
// points at a reachable server.
func TestRedisContract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := store.NewRedis(context.Background(), store.RedisConfig{Addr: addr, MaxLen: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	runContract(t, s)
}
