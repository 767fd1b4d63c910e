package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/store"
)

// TestMemoryPersistAssignsUniqueIDs verifies every persisted message gets a
// fresh id and keeps its content.
func TestMemoryPersistAssignsUniqueIDs(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	a, err := s.Persist(ctx, store.Draft{SenderID: "u1", RecipientID: "u2", Text: "hi"})
	require.NoError(t, err)
	b, err := s.Persist(ctx, store.Draft{SenderID: "u1", RecipientID: "u2", FileURL: "/uploads/a.png"})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "hi", a.Text)
	assert.Equal(t, "/uploads/a.png", b.FileURL)
	assert.Len(t, s.All(), 2)
}

// TestMemoryPersistRejectsEmptyDraft verifies validation errors are
// wrapped as StoreError and nothing is stored.
func TestMemoryPersistRejectsEmptyDraft(t *testing.T) {
	s := store.NewMemory()

	_, err := s.Persist(context.Background(), store.Draft{SenderID: "u1", RecipientID: "u2", Text: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrEmptyMessage)

	var se *store.StoreError
	assert.ErrorAs(t, err, &se)
	assert.Empty(t, s.All())

	_, err = s.Persist(context.Background(), store.Draft{SenderID: "u1", Text: "hi"})
	assert.Error(t, err)
}

// TestMemoryHistory verifies history is symmetric, oldest first, and
// limited to the newest messages.
func TestMemoryHistory(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		from, to := "u1", "u2"
		if i%2 == 1 {
			from, to = to, from
		}
		_, err := s.Persist(ctx, store.Draft{SenderID: from, RecipientID: to, Text: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}
	_, err := s.Persist(ctx, store.Draft{SenderID: "u1", RecipientID: "u3", Text: "other"})
	require.NoError(t, err)

	all, err := s.History(ctx, "u2", "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m0", all[0].Text)
	assert.Equal(t, "m4", all[4].Text)

	last, err := s.History(ctx, "u1", "u2", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "m3", last[0].Text)
	assert.Equal(t, "m4", last[1].Text)
}
