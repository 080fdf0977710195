package memory

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/memchat/backend/internal/remote"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("MEMCHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MEMCHAT_TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresRememberRecallListAll(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM memchat_memories WHERE user_id = $1`, userID)
	})

	saved, err := store.Remember(ctx, []Message{
		{Role: "user", Content: "My favorite food is pizza"},
		{Role: "user", Content: "I am training for a marathon"},
	}, userID)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	records, err := store.Recall(ctx, "pizza", userID, 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "My favorite food is pizza", records[0].Memory)

	all, err := store.ListAll(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := store.ListAll(ctx, "other-"+userID)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPostgresConnectFailureIsRemote(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "not a url ://")
	require.Error(t, err)
	assert.True(t, remote.IsRemote(err))
}
