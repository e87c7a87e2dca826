package dbserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/protocol"
)

const dialTimeout = 10 * time.Second

// Service owns the connection to the lobby. Each incoming request is
// dispatched on its own goroutine, so responses complete out of order when
// backend latencies differ; the lobby correlates them by id.
type Service struct {
	cfg    config.DatabaseConfig
	logger *zap.Logger
	store  Store

	ctx    context.Context
	cancel context.CancelFunc
	ch     *protocol.Channel
	wg     sync.WaitGroup
}

func NewService(cfg config.DatabaseConfig, logger *zap.Logger, store Store) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:    cfg,
		logger: logger,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start dials the lobby, claims the database role, and begins serving
// requests.
//
// Postcondition: on nil error the lobby has confirmed the role.
func (s *Service) Start() error {
	dialCtx, cancel := context.WithTimeout(s.ctx, dialTimeout)
	defer cancel()

	ch, err := protocol.Dial(dialCtx, s.cfg.LobbyAddr)
	if err != nil {
		return fmt.Errorf("dialing lobby at %s: %w", s.cfg.LobbyAddr, err)
	}

	if err = ch.Send(protocol.Handshake, protocol.ConnTypeDatabase); err != nil {
		_ = ch.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}
	values, err := ch.Receive(dialCtx, protocol.HandshakeResponse)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("awaiting handshake response: %w", err)
	}
	if result := values[0].(string); result != protocol.ResultConfirmed {
		_ = ch.Close()
		return fmt.Errorf("lobby rejected database role: %s", values[1])
	}

	s.ch = ch
	s.logger.Info("connected to lobby", zap.String("lobby_addr", s.cfg.LobbyAddr))

	s.wg.Add(1)
	go s.serve()
	return nil
}

// Stop tears down the lobby connection and waits for in-flight request
// handlers to finish.
func (s *Service) Stop() {
	s.cancel()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	s.wg.Wait()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store", zap.Error(err))
	}
}

func (s *Service) serve() {
	defer s.wg.Done()
	for {
		values, err := s.ch.Receive(s.ctx, protocol.DBRequest)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("lobby connection lost", zap.Error(err))
			}
			return
		}

		id := values[0].(string)
		collection := values[1].(string)
		action := values[2].(string)
		data, _ := values[3].(map[string]any)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(id, collection, action, data)
		}()
	}
}

func (s *Service) handle(id, collection, action string, data map[string]any) {
	code, out := s.execute(s.ctx, collection, action, data)
	if out == nil {
		out = map[string]any{}
	}
	if err := s.ch.Send(protocol.DBResponse, id, code, out); err != nil {
		s.logger.Warn("sending response",
			zap.String("request_id", id),
			zap.Error(err),
		)
	}
}

func (s *Service) execute(ctx context.Context, collection, action string, data map[string]any) (string, map[string]any) {
	switch collection {
	case protocol.CollectionUser:
		switch action {
		case protocol.ActionCreate:
			return s.createUser(ctx, data)
		case protocol.ActionQuery:
			return s.queryUsers(ctx, data)
		case protocol.ActionUpdate:
			return s.updateUser(ctx, data)
		}
	case protocol.CollectionRoom:
		switch action {
		case protocol.ActionCreate:
			return s.createRoom(ctx, data)
		case protocol.ActionQuery:
			return s.queryRooms(ctx, data)
		case protocol.ActionDelete:
			return s.deleteRoom(ctx, data)
		case protocol.ActionAddUser:
			return s.addRoomUser(ctx, data)
		case protocol.ActionRemoveUser:
			return s.removeRoomUser(ctx, data)
		}
	}
	s.logger.Warn("unsupported request",
		zap.String("collection", collection),
		zap.String("action", action),
	)
	return protocol.ResultError, message("Unsupported request.")
}

func (s *Service) createUser(ctx context.Context, data map[string]any) (string, map[string]any) {
	username, _ := data[protocol.KeyUsername].(string)
	password, _ := data[protocol.KeyPassword].(string)
	if username == "" || password == "" {
		return protocol.ResultFailure, message("Username and password are required.")
	}

	err := s.store.CreateUser(ctx, username, password)
	switch {
	case err == nil:
		return protocol.ResultSuccess, nil
	case errors.Is(err, ErrUserExists):
		return protocol.ResultFailure, message("Username already taken.")
	default:
		s.logger.Error("creating user", zap.String("username", username), zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
}

func (s *Service) queryUsers(ctx context.Context, data map[string]any) (string, map[string]any) {
	if username, ok := data[protocol.KeyUsername].(string); ok && username != "" {
		record, err := s.store.GetUser(ctx, username)
		switch {
		case err == nil:
			return protocol.ResultFound, userData(record)
		case errors.Is(err, ErrUserNotFound):
			return protocol.ResultNotFound, nil
		default:
			s.logger.Error("querying user", zap.String("username", username), zap.Error(err))
			return protocol.ResultError, message("Storage failure.")
		}
	}

	records, err := s.store.ListAvailableUsers(ctx)
	if err != nil {
		s.logger.Error("listing available users", zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
	if len(records) == 0 {
		return protocol.ResultNotFound, nil
	}
	out := make(map[string]any, len(records))
	for _, record := range records {
		out[record.Username] = userData(record)
	}
	return protocol.ResultFound, out
}

func (s *Service) updateUser(ctx context.Context, data map[string]any) (string, map[string]any) {
	username, _ := data[protocol.KeyUsername].(string)
	online, ok := data[protocol.KeyOnline].(bool)
	if username == "" || !ok {
		return protocol.ResultFailure, message("Nothing to update.")
	}

	err := s.store.SetUserOnline(ctx, username, online)
	switch {
	case err == nil:
		return protocol.ResultSuccess, nil
	case errors.Is(err, ErrUserNotFound):
		return protocol.ResultFailure, message("User not found.")
	default:
		s.logger.Error("updating user", zap.String("username", username), zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
}

func (s *Service) createRoom(ctx context.Context, data map[string]any) (string, map[string]any) {
	owner, _ := data[protocol.KeyOwner].(string)
	settings, _ := data[protocol.KeySettings].(map[string]any)
	if owner == "" {
		return protocol.ResultFailure, message("Owner is required.")
	}

	room, err := s.store.CreateRoom(ctx, owner, settings)
	switch {
	case err == nil:
		return protocol.ResultSuccess, map[string]any{
			protocol.KeyRoomID:   room.ID,
			protocol.KeyRoomInfo: roomData(room),
		}
	case errors.Is(err, ErrAlreadyInRoom):
		return protocol.ResultFailure, message("User is already in a room.")
	case errors.Is(err, ErrUserNotFound):
		return protocol.ResultFailure, message("User not found.")
	default:
		s.logger.Error("creating room", zap.String("owner", owner), zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
}

func (s *Service) queryRooms(ctx context.Context, data map[string]any) (string, map[string]any) {
	if roomID, ok := data[protocol.KeyRoomID].(string); ok && roomID != "" {
		room, err := s.store.GetRoom(ctx, roomID)
		switch {
		case err == nil:
			return protocol.ResultFound, map[string]any{roomID: roomData(room)}
		case errors.Is(err, ErrRoomNotFound):
			return protocol.ResultNotFound, nil
		default:
			s.logger.Error("querying room", zap.String("room_id", roomID), zap.Error(err))
			return protocol.ResultError, message("Storage failure.")
		}
	}

	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		s.logger.Error("listing rooms", zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
	out := make(map[string]any, len(rooms))
	for _, room := range rooms {
		out[room.ID] = roomData(room)
	}
	return protocol.ResultFound, out
}

func (s *Service) deleteRoom(ctx context.Context, data map[string]any) (string, map[string]any) {
	roomID, _ := data[protocol.KeyRoomID].(string)

	room, err := s.store.DeleteRoom(ctx, roomID)
	switch {
	case err == nil:
		return protocol.ResultSuccess, map[string]any{protocol.KeyRoomInfo: roomData(room)}
	case errors.Is(err, ErrRoomNotFound):
		return protocol.ResultFailure, message("Room not found.")
	default:
		s.logger.Error("deleting room", zap.String("room_id", roomID), zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
}

func (s *Service) addRoomUser(ctx context.Context, data map[string]any) (string, map[string]any) {
	var (
		room RoomRecord
		err  error
	)
	if invitee, ok := data[protocol.KeyInvitee].(string); ok && invitee != "" {
		inviter, _ := data[protocol.KeyInviter].(string)
		room, err = s.store.AddUserToMemberRoom(ctx, invitee, inviter)
	} else {
		roomID, _ := data[protocol.KeyRoomID].(string)
		username, _ := data[protocol.KeyUsername].(string)
		room, err = s.store.AddUserToRoom(ctx, roomID, username)
	}

	switch {
	case err == nil:
		return protocol.ResultSuccess, map[string]any{
			protocol.KeyRoomID:   room.ID,
			protocol.KeyRoomInfo: roomData(room),
		}
	case errors.Is(err, ErrRoomNotFound):
		return protocol.ResultFailure, message("Room not found.")
	case errors.Is(err, ErrRoomFull):
		return protocol.ResultFailure, message("Room is full.")
	case errors.Is(err, ErrAlreadyInRoom):
		return protocol.ResultFailure, message("User is already in a room.")
	case errors.Is(err, ErrUserNotFound):
		return protocol.ResultFailure, message("User not found.")
	default:
		s.logger.Error("adding room member", zap.Error(err))
		return protocol.ResultError, message("Storage failure.")
	}
}

func (s *Service) removeRoomUser(ctx context.Context, data map[string]any) (string, map[string]any) {
	roomID, _ := data[protocol.KeyRoomID].(string)
	username, _ := data[protocol.KeyUsername].(string)

	room, err := s.store.RemoveUserFromRoom(ctx, roomID, username)
	switch {
	case err == nil:
		return protocol.ResultSuccess, map[string]any{protocol.KeyRoomInfo: roomData(room)}
	case errors.Is(err, ErrRoomNotFound):
		return protocol.ResultFailure, message("Room not found.")
	case errors.Is(err, ErrNotInRoom):
		return protocol.ResultFailure, message("User is not in the room.")
	default:
		s.logger.Error("removing room member",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.Error(err),
		)
		return protocol.ResultError, message("Storage failure.")
	}
}

func userData(record UserRecord) map[string]any {
	var roomID any
	if record.CurrentRoomID != nil {
		roomID = *record.CurrentRoomID
	}
	return map[string]any{
		protocol.KeyUsername:      record.Username,
		protocol.KeyPassword:      record.Password,
		protocol.KeyOnline:        record.Online,
		protocol.KeyCurrentRoomID: roomID,
		"wins":                    record.Wins,
		"losses":                  record.Losses,
	}
}

func roomData(room RoomRecord) map[string]any {
	settings := room.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	users := room.Users
	if users == nil {
		users = []string{}
	}
	return map[string]any{
		protocol.KeyRoomID:   room.ID,
		protocol.KeyOwner:    room.Owner,
		protocol.KeySettings: settings,
		protocol.KeyUsers:    users,
	}
}

func message(text string) map[string]any {
	return map[string]any{protocol.KeyMessage: text}
}
