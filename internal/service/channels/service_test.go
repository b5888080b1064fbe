package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/store"
	"github.com/vovakirdan/commhub-server/internal/store/sqlite"
)

func newTestService(t *testing.T, users ...string) (*Service, *sqlite.SQLiteStore) {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for _, name := range users {
		require.NoError(t, st.CreateUser(context.Background(), &store.User{ID: name, Username: name, PasswordHash: "x"}))
	}
	return New(st), st
}

func TestCreateValidatesName(t *testing.T) {
	svc, _ := newTestService(t, "admin")
	ctx := context.Background()

	for _, name := range []string{"ab", "  ab  ", "this-name-is-way-too-long"} {
		_, err := svc.Create(ctx, "admin", CreateParams{Name: name})
		require.ErrorIs(t, err, ErrInvalidName, name)
	}

	ch, err := svc.Create(ctx, "admin", CreateParams{Name: " general "})
	require.NoError(t, err)
	require.Equal(t, "general", ch.Name)
	require.Equal(t, store.ChannelTypePublic, ch.Type)

	_, err = svc.Create(ctx, "admin", CreateParams{Name: "general"})
	require.ErrorIs(t, err, ErrNameTaken)
	require.ErrorIs(t, err, core.ErrBadRequest)

	_, err = svc.Create(ctx, "admin", CreateParams{Name: "orphan", ParentID: "missing"})
	require.ErrorIs(t, err, ErrParentNotFound)

	_, err = svc.Create(ctx, "admin", CreateParams{Name: "weird", Type: "secret"})
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestAccessRules(t *testing.T) {
	svc, _ := newTestService(t, "admin", "bob")
	ctx := context.Background()

	pub, err := svc.Create(ctx, "admin", CreateParams{Name: "lobby"})
	require.NoError(t, err)
	priv, err := svc.Create(ctx, "admin", CreateParams{Name: "staff", Type: store.ChannelTypePrivate})
	require.NoError(t, err)

	ok, err := svc.CanAccessChannel(ctx, "bob", pub.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanAccessChannel(ctx, "bob", priv.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanAccessChannel(ctx, "admin", priv.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.CanAccessChannel(ctx, "bob", "missing")
	require.True(t, errors.Is(err, core.ErrNotFound))

	_, err = svc.Join(ctx, "bob", priv.ID)
	require.ErrorIs(t, err, ErrPrivateChannel)

	_, err = svc.Details(ctx, "bob", priv.ID)
	require.ErrorIs(t, err, ErrNotMember)

	list, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestJoinLeaveAndAdminRules(t *testing.T) {
	svc, st := newTestService(t, "admin", "bob", "carol")
	ctx := context.Background()

	ch, err := svc.Create(ctx, "admin", CreateParams{Name: "general"})
	require.NoError(t, err)

	_, err = svc.Join(ctx, "bob", ch.ID)
	require.NoError(t, err)
	member, err := st.IsMember(ctx, "bob", ch.ID)
	require.NoError(t, err)
	require.True(t, member)

	require.ErrorIs(t, svc.Leave(ctx, "admin", ch.ID), ErrAdminCannotLeave)
	require.NoError(t, svc.Leave(ctx, "bob", ch.ID))

	require.ErrorIs(t, svc.AddMember(ctx, "bob", ch.ID, "carol"), ErrNotAdminAdd)
	require.ErrorIs(t, svc.AddMember(ctx, "admin", ch.ID, "nobody"), ErrUserNotFound)
	require.NoError(t, svc.AddMember(ctx, "admin", ch.ID, "carol"))

	details, err := svc.Details(ctx, "carol", ch.ID)
	require.NoError(t, err)
	require.Len(t, details.Members, 2)

	require.ErrorIs(t, svc.Delete(ctx, "carol", ch.ID), ErrNotAdminDelete)
	require.NoError(t, svc.Delete(ctx, "admin", ch.ID))
	require.ErrorIs(t, svc.Delete(ctx, "admin", ch.ID), ErrChannelNotFound)
}

func TestJoinRequests(t *testing.T) {
	svc, st := newTestService(t, "admin", "bob", "carol")
	ctx := context.Background()

	ch, err := svc.Create(ctx, "admin", CreateParams{Name: "staff", Type: store.ChannelTypePrivate})
	require.NoError(t, err)

	require.NoError(t, svc.RequestJoin(ctx, "bob", ch.ID))
	require.NoError(t, svc.RequestJoin(ctx, "carol", ch.ID))
	// Members have nothing to request.
	require.NoError(t, svc.RequestJoin(ctx, "admin", ch.ID))

	details, err := svc.Details(ctx, "admin", ch.ID)
	require.NoError(t, err)
	require.Len(t, details.Requests, 2)

	require.ErrorIs(t, svc.HandleRequest(ctx, "bob", ch.ID, "carol", ActionApprove), ErrNotAdminRequests)
	require.ErrorIs(t, svc.HandleRequest(ctx, "admin", ch.ID, "carol", "maybe"), ErrInvalidAction)

	require.NoError(t, svc.HandleRequest(ctx, "admin", ch.ID, "bob", ActionApprove))
	require.NoError(t, svc.HandleRequest(ctx, "admin", ch.ID, "carol", ActionReject))
	require.ErrorIs(t, svc.HandleRequest(ctx, "admin", ch.ID, "carol", ActionApprove), ErrRequestNotFound)

	ok, err := st.IsMember(ctx, "bob", ch.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.IsMember(ctx, "carol", ch.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesSubChannels(t *testing.T) {
	svc, _ := newTestService(t, "admin")
	ctx := context.Background()

	parent, err := svc.Create(ctx, "admin", CreateParams{Name: "engineering"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, "admin", CreateParams{Name: "backend", ParentID: parent.ID})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)

	require.NoError(t, svc.Delete(ctx, "admin", parent.ID))
	_, err = svc.Details(ctx, "admin", child.ID)
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _ := newTestService(t, "admin")
	ctx := context.Background()
	_, err := svc.Create(ctx, "admin", CreateParams{Name: "general"})
	require.NoError(t, err)

	found, err := svc.Search(ctx, "admin", "  ")
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = svc.Search(ctx, "admin", "GEN")
	require.NoError(t, err)
	require.Len(t, found, 1)
}
