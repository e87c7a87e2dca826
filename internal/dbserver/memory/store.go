// Package memory provides the default Store backend: an in-process map
// guarded by a mutex, with user accounts persisted to a JSON snapshot file.
// Rooms are deliberately ephemeral; they exist only while the process runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/dbserver"
)

type snapshotUser struct {
	Password string `json:"password"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

type snapshot struct {
	Users map[string]snapshotUser `json:"users"`
}

// Store holds all state under one mutex. The mutex is what arbitrates
// membership races: of two users adding themselves to a room's last free
// slot, whichever acquires the lock first wins and the other observes a
// full room.
type Store struct {
	logger *zap.Logger
	path   string

	mu    sync.Mutex
	users map[string]dbserver.UserRecord
	rooms map[string]dbserver.RoomRecord
}

// New loads the snapshot at path if one exists. Accounts are restored with
// online=false and no room, since no connection survives a restart. An
// empty path disables persistence.
func New(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		logger: logger,
		path:   path,
		users:  make(map[string]dbserver.UserRecord),
		rooms:  make(map[string]dbserver.RoomRecord),
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var snap snapshot
	if err = json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	for username, u := range snap.Users {
		s.users[username] = dbserver.UserRecord{
			Username: username,
			Password: u.Password,
			Wins:     u.Wins,
			Losses:   u.Losses,
		}
	}
	logger.Info("loaded user snapshot",
		zap.String("path", path),
		zap.Int("users", len(s.users)),
	)
	return s, nil
}

// persist writes the snapshot via a temp file and rename. Caller holds mu.
func (s *Store) persist() {
	if s.path == "" {
		return
	}
	snap := snapshot{Users: make(map[string]snapshotUser, len(s.users))}
	for username, u := range s.users {
		snap.Users[username] = snapshotUser{
			Password: u.Password,
			Wins:     u.Wins,
			Losses:   u.Losses,
		}
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.logger.Error("encoding snapshot", zap.Error(err))
		return
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, raw, 0o600); err != nil {
		s.logger.Error("writing snapshot", zap.String("path", tmp), zap.Error(err))
		return
	}
	if err = os.Rename(tmp, s.path); err != nil {
		s.logger.Error("replacing snapshot", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) CreateUser(_ context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return dbserver.ErrUserExists
	}
	s.users[username] = dbserver.UserRecord{Username: username, Password: password}
	s.persist()
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (dbserver.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return dbserver.UserRecord{}, dbserver.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) SetUserOnline(_ context.Context, username string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return dbserver.ErrUserNotFound
	}
	u.Online = online
	s.users[username] = u
	return nil
}

func (s *Store) ListAvailableUsers(_ context.Context) ([]dbserver.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []dbserver.UserRecord
	for _, u := range s.users {
		if u.Online && u.CurrentRoomID == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) CreateRoom(_ context.Context, owner string, settings map[string]any) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[owner]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrUserNotFound
	}
	if u.CurrentRoomID != nil {
		return dbserver.RoomRecord{}, dbserver.ErrAlreadyInRoom
	}

	id := s.smallestUnusedID()
	room := dbserver.RoomRecord{
		ID:       id,
		Owner:    owner,
		Settings: settings,
		Users:    []string{owner},
	}
	s.rooms[id] = room
	u.CurrentRoomID = &id
	s.users[owner] = u
	return cloneRoom(room), nil
}

// smallestUnusedID returns the lowest non-negative integer, as a string,
// not currently naming a room. Caller holds mu.
func (s *Store) smallestUnusedID() string {
	for i := 0; ; i++ {
		id := strconv.Itoa(i)
		if _, ok := s.rooms[id]; !ok {
			return id
		}
	}
}

func (s *Store) GetRoom(_ context.Context, roomID string) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *Store) ListRooms(_ context.Context) ([]dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dbserver.RoomRecord, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, cloneRoom(room))
	}
	sort.Slice(out, func(i, j int) bool { return roomIDLess(out[i].ID, out[j].ID) })
	return out, nil
}

// roomIDLess orders ids by their integer value, so "2" sorts before "10".
func roomIDLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr != nil || berr != nil {
		return a < b
	}
	return ai < bi
}

func (s *Store) AddUserToRoom(_ context.Context, roomID, username string) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(roomID, username)
}

func (s *Store) AddUserToMemberRoom(_ context.Context, invitee, inviter string) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host, ok := s.users[inviter]
	if !ok || host.CurrentRoomID == nil {
		return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
	}
	return s.addLocked(*host.CurrentRoomID, invitee)
}

// addLocked performs the membership checks and the add. Caller holds mu.
func (s *Store) addLocked(roomID, username string) (dbserver.RoomRecord, error) {
	u, ok := s.users[username]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrUserNotFound
	}
	if u.CurrentRoomID != nil {
		return dbserver.RoomRecord{}, dbserver.ErrAlreadyInRoom
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
	}
	if len(room.Users) >= 2 {
		return dbserver.RoomRecord{}, dbserver.ErrRoomFull
	}

	room.Users = append(room.Users, username)
	s.rooms[roomID] = room
	u.CurrentRoomID = &roomID
	s.users[username] = u
	return cloneRoom(room), nil
}

func (s *Store) RemoveUserFromRoom(_ context.Context, roomID, username string) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
	}

	idx := -1
	for i, member := range room.Users {
		if member == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return dbserver.RoomRecord{}, dbserver.ErrNotInRoom
	}

	room.Users = append(room.Users[:idx], room.Users[idx+1:]...)
	if u, ok := s.users[username]; ok {
		u.CurrentRoomID = nil
		s.users[username] = u
	}

	if len(room.Users) == 0 {
		delete(s.rooms, roomID)
		room.Owner = ""
		return cloneRoom(room), nil
	}

	// Ownership follows the earliest surviving member.
	room.Owner = room.Users[0]
	s.rooms[roomID] = room
	return cloneRoom(room), nil
}

func (s *Store) DeleteRoom(_ context.Context, roomID string) (dbserver.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return dbserver.RoomRecord{}, dbserver.ErrRoomNotFound
	}
	for _, member := range room.Users {
		if u, ok := s.users[member]; ok {
			u.CurrentRoomID = nil
			s.users[member] = u
		}
	}
	delete(s.rooms, roomID)
	return cloneRoom(room), nil
}

// Close writes a final snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist()
	return nil
}

// DefaultSnapshotPath resolves a relative snapshot path against the working
// directory so logs show where the file actually lives.
func DefaultSnapshotPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func cloneRoom(room dbserver.RoomRecord) dbserver.RoomRecord {
	out := room
	out.Users = append([]string(nil), room.Users...)
	if room.Settings != nil {
		settings := make(map[string]any, len(room.Settings))
		for k, v := range room.Settings {
			settings[k] = v
		}
		out.Settings = settings
	}
	return out
}
