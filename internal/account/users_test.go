package account_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/account"
	"github.com/Tyrowin/relaychat/internal/store"
)

func runUsersContract(t *testing.T, users account.Users) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := "user-" + uuid.NewString()
	created, err := users.Create(ctx, name, []byte("hash"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = users.Create(ctx, name, []byte("other"))
	assert.ErrorIs(t, err, account.ErrUserExists)

	found, err := users.FindByUsername(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, []byte("hash"), found.PasswordHash)

	_, err = users.FindByUsername(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, account.ErrUserNotFound)
}

// TestMemoryUsers runs the account contract in memory and checks names
// are matched case-insensitively.
func TestMemoryUsers(t *testing.T) {
	users := account.NewMemoryUsers()
	runUsersContract(t, users)

	_, err := users.Create(context.Background(), "Alice", nil)
	require.NoError(t, err)
	_, err = users.Create(context.Background(), "alice", nil)
	assert.ErrorIs(t, err, account.ErrUserExists)
}

// TestMongoUsers runs the account contract against MongoDB when
// MONGODB_URL points at a reachable server.
func TestMongoUsers(t *testing.T) {
	uri := os.Getenv("MONGODB_URL")
	if uri == "" {
		t.Skip("MONGODB_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := store.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	users := account.NewMongoUsers(client.Database("relaychat_test"))
	require.NoError(t, users.EnsureIndexes(ctx))
	runUsersContract(t, users)
}
