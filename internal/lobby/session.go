package lobby

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/protocol"
)

// cleanupTimeout bounds the best-effort database cleanup performed when a
// client exits or drops.
const cleanupTimeout = 5 * time.Second

// session executes all business logic for one client connection,
// synchronously on that connection's goroutine. Command handling follows a
// uniform pattern: validate local preconditions, issue correlated database
// requests, map the result to a client-visible response, and only then
// update local session state and notify affected peers.
type session struct {
	srv    *Server
	client *Client
	logger *zap.Logger
}

func (s *session) ch() *protocol.Channel { return s.client.ch }

func (s *session) run(ctx context.Context) {
	if err := s.ch().Send(protocol.HandshakeResponse, protocol.ResultConfirmed, "welcome"); err != nil {
		s.logger.Debug("confirming client handshake", zap.Error(err))
		return
	}

	for {
		values, err := s.ch().Receive(ctx, protocol.ClientCommand)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.farewell()
			} else {
				s.logger.Debug("client connection lost", zap.Error(err))
			}
			s.cleanup()
			return
		}

		command := values[0].(string)
		params, _ := values[1].(map[string]any)

		if command == protocol.CommandExit {
			s.cleanup()
			return
		}
		s.dispatch(ctx, command, params)
	}
}

// farewell pushes a server_shutdown event and waits briefly for the final
// exit acknowledgment so the client can wind down cleanly.
func (s *session) farewell() {
	if err := s.client.Event(protocol.EventServerShutdown, nil); err != nil {
		return
	}

	grace := s.srv.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	values, err := s.ch().Receive(ctx, protocol.ClientCommand)
	if err != nil {
		return
	}
	if cmd := values[0].(string); cmd != protocol.CommandExit {
		s.logger.Warn("expected exit acknowledgment", zap.String("command", cmd))
	}
}

// cleanup restores database state after a clean exit or an abrupt
// disconnect: leave the current room with peer notification, then mark the
// account offline. Best-effort; an unreachable database only logs.
func (s *session) cleanup() {
	if s.client.Username() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	s.setOffline(ctx)
	s.srv.registry.Unbind(s.client)
}

func (s *session) setOffline(ctx context.Context) {
	username := s.client.Username()

	if roomID := s.client.RoomID(); roomID != "" {
		res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionRemoveUser, map[string]any{
			protocol.KeyRoomID:   roomID,
			protocol.KeyUsername: username,
		})
		if err == nil && res.Code == protocol.ResultSuccess {
			roomInfo, _ := res.Data[protocol.KeyRoomInfo].(map[string]any)
			s.notifyRoom(roomInfo, protocol.EventUserLeft, map[string]any{
				protocol.KeyUsername: username,
				protocol.KeyRoomInfo: roomInfo,
			})
		}
		s.client.clearRoom()
	}

	_, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionUpdate, map[string]any{
		protocol.KeyUsername:      username,
		protocol.KeyOnline:        false,
		protocol.KeyCurrentRoomID: nil,
	})
	if err != nil && !errors.Is(err, ErrDatabaseUnavailable) {
		s.logger.Warn("marking user offline", zap.String("username", username), zap.Error(err))
	}
}

// dispatch applies the per-client state machine. Commands invalid for the
// current state return an invalid result without mutating anything.
func (s *session) dispatch(ctx context.Context, command string, params map[string]any) {
	authed := s.client.Username() != ""
	inRoom := s.client.RoomID() != ""

	allowed := false
	switch command {
	case protocol.CommandCheckUsername, protocol.CommandRegister, protocol.CommandLogin:
		allowed = !authed
	case protocol.CommandLogout, protocol.CommandCheckOnlineUsers, protocol.CommandCheckJoinableRooms:
		allowed = authed
	case protocol.CommandCreateRoom, protocol.CommandJoinRoom,
		protocol.CommandAcceptInvite, protocol.CommandDeclineInvite:
		allowed = authed && !inRoom
	case protocol.CommandLeaveRoom, protocol.CommandDisbandRoom,
		protocol.CommandInviteUser, protocol.CommandStartGame:
		allowed = authed && inRoom
	}
	if !allowed {
		_ = s.client.Respond(command, protocol.ResultInvalid,
			message("command not valid in current state"))
		return
	}

	switch command {
	case protocol.CommandCheckUsername:
		s.handleCheckUsername(ctx, params)
	case protocol.CommandRegister:
		s.handleRegister(ctx, params)
	case protocol.CommandLogin:
		s.handleLogin(ctx, params)
	case protocol.CommandLogout:
		s.handleLogout(ctx)
	case protocol.CommandCheckOnlineUsers:
		s.handleCheckOnlineUsers(ctx)
	case protocol.CommandCheckJoinableRooms:
		s.handleCheckJoinableRooms(ctx)
	case protocol.CommandCreateRoom:
		s.handleCreateRoom(ctx, params)
	case protocol.CommandJoinRoom:
		s.handleJoinRoom(ctx, params)
	case protocol.CommandLeaveRoom:
		s.handleLeaveRoom(ctx)
	case protocol.CommandDisbandRoom:
		s.handleDisbandRoom(ctx)
	case protocol.CommandInviteUser:
		s.handleInviteUser(ctx, params)
	case protocol.CommandAcceptInvite:
		s.handleAcceptInvite(ctx, params)
	case protocol.CommandDeclineInvite:
		s.handleDeclineInvite(params)
	case protocol.CommandStartGame:
		s.handleStartGame(ctx)
	}
}

func (s *session) handleCheckUsername(ctx context.Context, params map[string]any) {
	username, _ := params[protocol.KeyUsername].(string)

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionQuery, map[string]any{
		protocol.KeyUsername: username,
	})
	if err != nil {
		s.dbFail(protocol.CommandCheckUsername, err)
		return
	}

	switch res.Code {
	case protocol.ResultFound:
		_ = s.client.Respond(protocol.CommandCheckUsername, protocol.ResultInvalid,
			message("Username already taken."))
	case protocol.ResultNotFound:
		_ = s.client.Respond(protocol.CommandCheckUsername, protocol.ResultValid,
			message("Username is available."))
	default:
		_ = s.client.Respond(protocol.CommandCheckUsername, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleRegister(ctx context.Context, params map[string]any) {
	username, _ := params[protocol.KeyUsername].(string)
	password, _ := params[protocol.KeyPassword].(string)

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionCreate, map[string]any{
		protocol.KeyUsername: username,
		protocol.KeyPassword: password,
	})
	if err != nil {
		s.dbFail(protocol.CommandRegister, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		_ = s.client.Respond(protocol.CommandRegister, protocol.ResultSuccess,
			message("Registration successful."))
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandRegister, protocol.ResultFailure,
			message("Username already taken."))
	default:
		_ = s.client.Respond(protocol.CommandRegister, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleLogin(ctx context.Context, params map[string]any) {
	username, _ := params[protocol.KeyUsername].(string)
	password, _ := params[protocol.KeyPassword].(string)

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionQuery, map[string]any{
		protocol.KeyUsername: username,
	})
	if err != nil {
		s.dbFail(protocol.CommandLogin, err)
		return
	}

	if res.Code != protocol.ResultFound {
		_ = s.client.Respond(protocol.CommandLogin, protocol.ResultFailure,
			message("Incorrect username or password."))
		return
	}
	if stored, _ := res.Data[protocol.KeyPassword].(string); stored != password {
		_ = s.client.Respond(protocol.CommandLogin, protocol.ResultFailure,
			message("Incorrect username or password."))
		return
	}
	if online, _ := res.Data[protocol.KeyOnline].(bool); online {
		_ = s.client.Respond(protocol.CommandLogin, protocol.ResultFailure,
			message("User already logged in elsewhere."))
		return
	}

	update, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionUpdate, map[string]any{
		protocol.KeyUsername: username,
		protocol.KeyOnline:   true,
	})
	if err != nil {
		s.dbFail(protocol.CommandLogin, err)
		return
	}
	if update.Code != protocol.ResultSuccess {
		s.logger.Warn("failed to mark user online", zap.String("username", username))
	}

	s.srv.registry.Bind(s.client, username)
	s.logger.Info("user logged in", zap.String("username", username))
	_ = s.client.Respond(protocol.CommandLogin, protocol.ResultSuccess,
		message("Login successful."))
}

func (s *session) handleLogout(ctx context.Context) {
	if !s.srv.correlator.Connected() {
		_ = s.client.Respond(protocol.CommandLogout, protocol.ResultError,
			message("No database server connected."))
		return
	}

	username := s.client.Username()
	s.setOffline(ctx)
	s.srv.registry.Unbind(s.client)

	s.logger.Info("user logged out", zap.String("username", username))
	_ = s.client.Respond(protocol.CommandLogout, protocol.ResultSuccess,
		message("Logout successful."))
}

func (s *session) handleCheckOnlineUsers(ctx context.Context) {
	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionQuery, map[string]any{
		protocol.KeyOnline:        true,
		protocol.KeyCurrentRoomID: nil,
	})
	if err != nil {
		s.dbFail(protocol.CommandCheckOnlineUsers, err)
		return
	}

	switch res.Code {
	case protocol.ResultFound:
		users := make([]string, 0, len(res.Data))
		for username := range res.Data {
			if username == s.client.Username() {
				continue
			}
			users = append(users, username)
		}
		sort.Strings(users)
		_ = s.client.Respond(protocol.CommandCheckOnlineUsers, protocol.ResultSuccess,
			map[string]any{protocol.KeyUsers: users})
	case protocol.ResultNotFound:
		_ = s.client.Respond(protocol.CommandCheckOnlineUsers, protocol.ResultFailure,
			message("No online users found."))
	default:
		_ = s.client.Respond(protocol.CommandCheckOnlineUsers, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleCheckJoinableRooms(ctx context.Context) {
	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionQuery, nil)
	if err != nil {
		s.dbFail(protocol.CommandCheckJoinableRooms, err)
		return
	}
	if res.Code != protocol.ResultFound {
		_ = s.client.Respond(protocol.CommandCheckJoinableRooms, protocol.ResultError,
			message("Database error."))
		return
	}

	// Only public rooms with a free slot are joinable.
	joinable := make(map[string]any)
	for roomID, raw := range res.Data {
		info, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if len(stringList(info[protocol.KeyUsers])) >= 2 {
			continue
		}
		settings, _ := info[protocol.KeySettings].(map[string]any)
		if privacy, _ := settings[protocol.KeyPrivacy].(string); privacy != protocol.PrivacyPublic {
			continue
		}
		joinable[roomID] = info
	}
	_ = s.client.Respond(protocol.CommandCheckJoinableRooms, protocol.ResultSuccess, joinable)
}

func (s *session) handleCreateRoom(ctx context.Context, params map[string]any) {
	username := s.client.Username()

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionCreate, map[string]any{
		protocol.KeyOwner:    username,
		protocol.KeySettings: params,
	})
	if err != nil {
		s.dbFail(protocol.CommandCreateRoom, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		roomID, _ := res.Data[protocol.KeyRoomID].(string)
		s.client.setRoom(roomID, true)
		s.logger.Info("room created",
			zap.String("username", username),
			zap.String("room_id", roomID),
		)
		_ = s.client.Respond(protocol.CommandCreateRoom, protocol.ResultSuccess, map[string]any{
			protocol.KeyMessage: "Room created successfully.",
			protocol.KeyRoomID:  roomID,
		})
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandCreateRoom, protocol.ResultFailure,
			message("Failed to create room."))
	default:
		_ = s.client.Respond(protocol.CommandCreateRoom, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleJoinRoom(ctx context.Context, params map[string]any) {
	username := s.client.Username()
	roomID, _ := params[protocol.KeyRoomID].(string)

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionAddUser, map[string]any{
		protocol.KeyRoomID:   roomID,
		protocol.KeyUsername: username,
	})
	if err != nil {
		s.dbFail(protocol.CommandJoinRoom, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		s.srv.invites.InvalidateInvitee(username)
		roomInfo, _ := res.Data[protocol.KeyRoomInfo].(map[string]any)
		s.client.setRoom(roomID, false)
		_ = s.client.Respond(protocol.CommandJoinRoom, protocol.ResultSuccess, map[string]any{
			protocol.KeyMessage:  "Joined room successfully.",
			protocol.KeyRoomInfo: roomInfo,
		})
		s.notifyRoom(roomInfo, protocol.EventUserJoined, map[string]any{
			protocol.KeyUsername: username,
			protocol.KeyRoomInfo: roomInfo,
		})
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandJoinRoom, protocol.ResultFailure,
			message(failureMessage(res.Data, "Failed to join room.")))
	default:
		_ = s.client.Respond(protocol.CommandJoinRoom, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleLeaveRoom(ctx context.Context) {
	username := s.client.Username()
	roomID := s.client.RoomID()

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionRemoveUser, map[string]any{
		protocol.KeyRoomID:   roomID,
		protocol.KeyUsername: username,
	})
	if err != nil {
		s.dbFail(protocol.CommandLeaveRoom, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		roomInfo, _ := res.Data[protocol.KeyRoomInfo].(map[string]any)
		s.client.clearRoom()
		_ = s.client.Respond(protocol.CommandLeaveRoom, protocol.ResultSuccess,
			message("Left room successfully."))
		s.notifyRoom(roomInfo, protocol.EventUserLeft, map[string]any{
			protocol.KeyUsername: username,
			protocol.KeyRoomInfo: roomInfo,
		})
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandLeaveRoom, protocol.ResultFailure,
			message(failureMessage(res.Data, "Failed to leave room.")))
	default:
		_ = s.client.Respond(protocol.CommandLeaveRoom, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleDisbandRoom(ctx context.Context) {
	if !s.client.IsOwner() {
		_ = s.client.Respond(protocol.CommandDisbandRoom, protocol.ResultFailure,
			message("Only the room owner can disband the room."))
		return
	}
	roomID := s.client.RoomID()

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionDelete, map[string]any{
		protocol.KeyRoomID: roomID,
	})
	if err != nil {
		s.dbFail(protocol.CommandDisbandRoom, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		roomInfo, _ := res.Data[protocol.KeyRoomInfo].(map[string]any)
		for _, member := range stringList(roomInfo[protocol.KeyUsers]) {
			if member == s.client.Username() {
				continue
			}
			if peer, ok := s.srv.registry.Lookup(member); ok {
				peer.clearRoom()
				_ = peer.Event(protocol.EventRoomDisbanded, map[string]any{
					protocol.KeyRoomID: roomID,
				})
			}
		}
		s.client.clearRoom()
		s.logger.Info("room disbanded", zap.String("room_id", roomID))
		_ = s.client.Respond(protocol.CommandDisbandRoom, protocol.ResultSuccess,
			message("Room disbanded."))
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandDisbandRoom, protocol.ResultFailure,
			message(failureMessage(res.Data, "Failed to disband room.")))
	default:
		_ = s.client.Respond(protocol.CommandDisbandRoom, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleInviteUser(ctx context.Context, params map[string]any) {
	inviter := s.client.Username()
	invitee, _ := params[protocol.KeyUsername].(string)
	if invitee == "" || invitee == inviter {
		_ = s.client.Respond(protocol.CommandInviteUser, protocol.ResultFailure,
			message("Invalid invitee."))
		return
	}

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionQuery, map[string]any{
		protocol.KeyUsername: invitee,
	})
	if err != nil {
		s.dbFail(protocol.CommandInviteUser, err)
		return
	}
	if res.Code != protocol.ResultFound {
		_ = s.client.Respond(protocol.CommandInviteUser, protocol.ResultFailure,
			message("User not found."))
		return
	}

	online, _ := res.Data[protocol.KeyOnline].(bool)
	if !online || !isRoomless(res.Data) {
		_ = s.client.Respond(protocol.CommandInviteUser, protocol.ResultFailure,
			message("User is not available for invitations."))
		return
	}

	peer, ok := s.srv.registry.Lookup(invitee)
	if !ok {
		_ = s.client.Respond(protocol.CommandInviteUser, protocol.ResultFailure,
			message("Invited user not found among connected clients."))
		return
	}

	s.srv.invites.Add(invitee, inviter)
	_ = peer.Event(protocol.EventInvitationReceived, map[string]any{
		protocol.KeyUsername: inviter,
		protocol.KeyRoomID:   s.client.RoomID(),
	})
	_ = s.client.Respond(protocol.CommandInviteUser, protocol.ResultSuccess,
		message("Invitation sent successfully."))
}

func (s *session) handleAcceptInvite(ctx context.Context, params map[string]any) {
	invitee := s.client.Username()
	inviter, _ := params[protocol.KeyUsername].(string)

	if !s.srv.invites.Consume(invitee, inviter) {
		_ = s.client.Respond(protocol.CommandAcceptInvite, protocol.ResultFailure,
			message("No invitation found from this user."))
		return
	}

	// Join the inviter's current room; the database resolves which room that
	// is and arbitrates the race against any concurrent join.
	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionAddUser, map[string]any{
		protocol.KeyInvitee: invitee,
		protocol.KeyInviter: inviter,
	})
	if err != nil {
		s.dbFail(protocol.CommandAcceptInvite, err)
		return
	}

	switch res.Code {
	case protocol.ResultSuccess:
		s.srv.invites.InvalidateInvitee(invitee)
		roomID, _ := res.Data[protocol.KeyRoomID].(string)
		roomInfo, _ := res.Data[protocol.KeyRoomInfo].(map[string]any)
		s.client.setRoom(roomID, false)
		_ = s.client.Respond(protocol.CommandAcceptInvite, protocol.ResultSuccess, map[string]any{
			protocol.KeyMessage:  "Joined room successfully.",
			protocol.KeyRoomID:   roomID,
			protocol.KeyRoomInfo: roomInfo,
		})
		s.notifyRoom(roomInfo, protocol.EventUserJoined, map[string]any{
			protocol.KeyUsername: invitee,
			protocol.KeyRoomInfo: roomInfo,
		})
	case protocol.ResultFailure:
		_ = s.client.Respond(protocol.CommandAcceptInvite, protocol.ResultFailure,
			message(failureMessage(res.Data, "Failed to join room.")))
	default:
		_ = s.client.Respond(protocol.CommandAcceptInvite, protocol.ResultError,
			message("Database error."))
	}
}

func (s *session) handleDeclineInvite(params map[string]any) {
	inviter, _ := params[protocol.KeyUsername].(string)
	if s.srv.invites.Consume(s.client.Username(), inviter) {
		_ = s.client.Respond(protocol.CommandDeclineInvite, protocol.ResultSuccess,
			message("Invitation declined."))
		return
	}
	_ = s.client.Respond(protocol.CommandDeclineInvite, protocol.ResultFailure,
		message("No invitation found from this user."))
}

func (s *session) handleStartGame(ctx context.Context) {
	if !s.client.IsOwner() {
		_ = s.client.Respond(protocol.CommandStartGame, protocol.ResultFailure,
			message("Only the room owner can start the game."))
		return
	}
	roomID := s.client.RoomID()

	res, err := s.srv.correlator.Roundtrip(ctx, protocol.CollectionRoom, protocol.ActionQuery, map[string]any{
		protocol.KeyRoomID: roomID,
	})
	if err != nil {
		s.dbFail(protocol.CommandStartGame, err)
		return
	}
	if res.Code != protocol.ResultFound {
		_ = s.client.Respond(protocol.CommandStartGame, protocol.ResultError,
			message("Database error."))
		return
	}

	info, _ := res.Data[roomID].(map[string]any)
	members := stringList(info[protocol.KeyUsers])
	if len(members) != 2 {
		_ = s.client.Respond(protocol.CommandStartGame, protocol.ResultFailure,
			message("Room must have two players to start."))
		return
	}

	// Hand both players off to the match process and step aside.
	handoff := map[string]any{
		protocol.KeyAddress: s.srv.cfg.GameServerAddr,
		protocol.KeyRoomID:  roomID,
	}
	for _, member := range members {
		if peer, ok := s.srv.registry.Lookup(member); ok {
			_ = peer.Event(protocol.EventConnectToGameServer, handoff)
		}
	}
	s.logger.Info("match handoff",
		zap.String("room_id", roomID),
		zap.String("game_server_addr", s.srv.cfg.GameServerAddr),
	)
	_ = s.client.Respond(protocol.CommandStartGame, protocol.ResultSuccess, handoff)
}

// notifyRoom delivers an event to every current member of the room except
// this session's client, refreshing each peer's local room/ownership view
// so peers never need to poll.
func (s *session) notifyRoom(roomInfo map[string]any, eventType string, data map[string]any) {
	if roomInfo == nil {
		return
	}
	roomID, _ := roomInfo[protocol.KeyRoomID].(string)
	owner, _ := roomInfo[protocol.KeyOwner].(string)

	for _, member := range stringList(roomInfo[protocol.KeyUsers]) {
		if member == s.client.Username() {
			continue
		}
		peer, ok := s.srv.registry.Lookup(member)
		if !ok {
			continue
		}
		peer.setRoom(roomID, member == owner)
		_ = peer.Event(eventType, data)
	}
}

func (s *session) dbFail(command string, err error) {
	switch {
	case errors.Is(err, ErrDatabaseUnavailable):
		_ = s.client.Respond(command, protocol.ResultError,
			message("No database server connected."))
	case errors.Is(err, context.Canceled):
		// Shutdown in progress; the run loop sends the farewell.
	default:
		s.logger.Error("database round trip failed", zap.String("command", command), zap.Error(err))
		_ = s.client.Respond(command, protocol.ResultError,
			message("Database error."))
	}
}

func message(text string) map[string]any {
	return map[string]any{protocol.KeyMessage: text}
}

func failureMessage(data map[string]any, fallback string) string {
	if m, ok := data[protocol.KeyMessage].(string); ok && m != "" {
		return m
	}
	return fallback
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func isRoomless(record map[string]any) bool {
	switch room := record[protocol.KeyCurrentRoomID].(type) {
	case nil:
		return true
	case string:
		return room == ""
	}
	return false
}
