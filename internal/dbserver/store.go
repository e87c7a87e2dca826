// Package dbserver implements the persistence service. It connects to the
// lobby as a peer, identifies itself as the database role, and answers
// correlated requests against a pluggable Store backend.
package dbserver

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. The service maps these
// to wire-level failure results; anything else becomes an error result.
var (
	ErrUserExists    = errors.New("user already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrAlreadyInRoom = errors.New("user is already in a room")
	ErrNotInRoom     = errors.New("user is not in the room")
)

// UserRecord is a stored account. CurrentRoomID is nil while the user is
// not in any room.
type UserRecord struct {
	Username      string
	Password      string
	Online        bool
	CurrentRoomID *string
	Wins          int
	Losses        int
}

// RoomRecord is a stored room. Users preserves join order; the first entry
// is always the owner.
type RoomRecord struct {
	ID       string
	Owner    string
	Settings map[string]any
	Users    []string
}

// Store is the persistence backend. Implementations arbitrate concurrent
// membership changes themselves: when two users race for a room's last
// slot, exactly one AddUserToRoom succeeds.
//
// Membership operations maintain each affected user's CurrentRoomID, so
// user and room state never disagree.
type Store interface {
	CreateUser(ctx context.Context, username, password string) error
	GetUser(ctx context.Context, username string) (UserRecord, error)
	SetUserOnline(ctx context.Context, username string, online bool) error
	// ListAvailableUsers returns every online user who is not in a room.
	ListAvailableUsers(ctx context.Context) ([]UserRecord, error)

	// CreateRoom allocates the smallest unused room id and places the owner
	// in the room.
	CreateRoom(ctx context.Context, owner string, settings map[string]any) (RoomRecord, error)
	GetRoom(ctx context.Context, roomID string) (RoomRecord, error)
	ListRooms(ctx context.Context) ([]RoomRecord, error)
	AddUserToRoom(ctx context.Context, roomID, username string) (RoomRecord, error)
	// AddUserToMemberRoom adds invitee to whichever room inviter currently
	// occupies. Returns ErrRoomNotFound when the inviter is roomless.
	AddUserToMemberRoom(ctx context.Context, invitee, inviter string) (RoomRecord, error)
	// RemoveUserFromRoom removes the user and returns the room as it stands
	// afterwards. Ownership passes to the earliest remaining member; a room
	// left empty is deleted and returned with no users.
	RemoveUserFromRoom(ctx context.Context, roomID, username string) (RoomRecord, error)
	// DeleteRoom removes the room outright and returns it as it was,
	// including the members that need to be told.
	DeleteRoom(ctx context.Context, roomID string) (RoomRecord, error)

	Close() error
}
