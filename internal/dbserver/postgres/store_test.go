package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/dbserver"
	"github.com/blockduel/backend/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return NewFromPool(pc.Pool, zap.NewNop())
}

func seedUsers(t *testing.T, s *Store, usernames ...string) {
	t.Helper()
	ctx := context.Background()
	for _, u := range usernames {
		require.NoError(t, s.CreateUser(ctx, u, "pw"))
		require.NoError(t, s.SetUserOnline(ctx, u, true))
	}
}

func TestStoreUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, "alice", "pw"))
	assert.ErrorIs(t, s.CreateUser(ctx, "alice", "other"), dbserver.ErrUserExists)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pw", u.Password)
	assert.False(t, u.Online)
	assert.Nil(t, u.CurrentRoomID)

	require.NoError(t, s.SetUserOnline(ctx, "alice", true))
	u, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.Online)

	assert.ErrorIs(t, s.SetUserOnline(ctx, "ghost", true), dbserver.ErrUserNotFound)
	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, dbserver.ErrUserNotFound)
}

func TestStoreRoomLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob", "carol")

	room, err := s.CreateRoom(ctx, "alice", map[string]any{"privacy": "public"})
	require.NoError(t, err)
	assert.Equal(t, "0", room.ID)
	assert.Equal(t, "alice", room.Owner)
	assert.Equal(t, []string{"alice"}, room.Users)
	assert.Equal(t, "public", room.Settings["privacy"])

	joined, err := s.AddUserToRoom(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, joined.Users)

	_, err = s.AddUserToRoom(ctx, room.ID, "carol")
	assert.ErrorIs(t, err, dbserver.ErrRoomFull)
	_, err = s.CreateRoom(ctx, "bob", nil)
	assert.ErrorIs(t, err, dbserver.ErrAlreadyInRoom)

	// Owner leaving passes ownership to the survivor.
	after, err := s.RemoveUserFromRoom(ctx, room.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", after.Owner)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, u.CurrentRoomID)

	// Last member leaving deletes the room.
	after, err = s.RemoveUserFromRoom(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, after.Users)
	_, err = s.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, dbserver.ErrRoomNotFound)

	// Freed id is reused.
	room, err = s.CreateRoom(ctx, "carol", nil)
	require.NoError(t, err)
	assert.Equal(t, "0", room.ID)
}

func TestStoreDeleteRoomFreesMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob")

	room, err := s.CreateRoom(ctx, "alice", nil)
	require.NoError(t, err)
	_, err = s.AddUserToRoom(ctx, room.ID, "bob")
	require.NoError(t, err)

	deleted, err := s.DeleteRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, deleted.Users)

	for _, username := range []string{"alice", "bob"} {
		u, err := s.GetUser(ctx, username)
		require.NoError(t, err)
		assert.Nil(t, u.CurrentRoomID)
	}
	_, err = s.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, dbserver.ErrRoomNotFound)
}

func TestStoreAddUserToMemberRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob")

	_, err := s.AddUserToMemberRoom(ctx, "bob", "alice")
	assert.ErrorIs(t, err, dbserver.ErrRoomNotFound)

	room, err := s.CreateRoom(ctx, "alice", nil)
	require.NoError(t, err)
	joined, err := s.AddUserToMemberRoom(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
}

// Two users racing for the last slot: exactly one commit wins.
func TestStoreConcurrentJoinLastSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob", "carol")

	room, err := s.CreateRoom(ctx, "alice", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, username := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			_, errs[i] = s.AddUserToRoom(ctx, room.ID, username)
		}(i, username)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, dbserver.ErrRoomFull)
		}
	}
	assert.Equal(t, 1, succeeded)

	final, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, final.Users, 2)
}

func TestStoreListRoomsOrdersIDsNumerically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		owner := fmt.Sprintf("user%d", i)
		seedUsers(t, s, owner)
		_, err := s.CreateRoom(ctx, owner, nil)
		require.NoError(t, err)
	}

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, ids,
		"id 10 sorts after 9, not after 1")
}

func TestStoreListAvailableUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUsers(t, s, "alice", "bob", "carol")
	require.NoError(t, s.SetUserOnline(ctx, "carol", false))

	_, err := s.CreateRoom(ctx, "alice", nil)
	require.NoError(t, err)

	available, err := s.ListAvailableUsers(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "bob", available[0].Username)
}
