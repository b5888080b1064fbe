package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/commhub-server/internal/store"
)

// newTestStore connects to COMMHUB_TEST_POSTGRES_DSN; tests are skipped
// without it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COMMHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COMMHUB_TEST_POSTGRES_DSN not set")
	}
	s, err := New(context.Background(), dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	alice := &store.User{ID: uuid.NewString(), Username: "alice-" + suffix, PasswordHash: "x"}
	bob := &store.User{ID: uuid.NewString(), Username: "bob-" + suffix, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))
	require.ErrorIs(t, s.CreateUser(ctx, &store.User{ID: uuid.NewString(), Username: alice.Username}), store.ErrConflict)

	ch := &store.Channel{ID: uuid.NewString(), Name: "ch-" + suffix, Type: store.ChannelTypePrivate, AdminID: alice.ID}
	require.NoError(t, s.CreateChannel(ctx, ch))
	ok, err := s.IsMember(ctx, alice.ID, ch.ID)
	require.NoError(t, err)
	require.True(t, ok)

	conv := "channel:" + ch.ID
	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.SaveMessage(ctx, &store.Message{
			ID: uuid.NewString(), Conversation: conv, ChannelID: &ch.ID, SenderID: alice.ID, Type: "text", Text: text,
		}))
	}
	page, err := s.ListMessages(ctx, store.MessageQuery{Conversation: conv, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "two", page[0].Text)
	require.Equal(t, "three", page[1].Text)

	require.NoError(t, s.DeleteChannel(ctx, ch.ID))
	_, err = s.GetMessage(ctx, page[0].ID)
	require.True(t, errors.Is(err, store.ErrNotFound))
}
