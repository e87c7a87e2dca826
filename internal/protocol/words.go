package protocol

// Connection types declared in the first message on any accepted socket.
const (
	ConnTypeClient     = "client"
	ConnTypeDatabase   = "database_server"
	ConnTypeGameServer = "game_server"
)

// Result codes carried in responses.
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultError     = "error"
	ResultInvalid   = "invalid"
	ResultValid     = "valid"
	ResultFound     = "found"
	ResultNotFound  = "not_found"
	ResultConfirmed = "confirmed"
)

// Message types for lobby-to-client traffic.
const (
	MessageTypeResponse = "response"
	MessageTypeEvent    = "event"
)

// Client commands.
const (
	CommandExit               = "exit"
	CommandCheckUsername      = "check_username"
	CommandRegister           = "register"
	CommandLogin              = "login"
	CommandLogout             = "logout"
	CommandCheckOnlineUsers   = "check_online_users"
	CommandCheckJoinableRooms = "check_joinable_rooms"
	CommandCreateRoom         = "create_room"
	CommandJoinRoom           = "join_room"
	CommandLeaveRoom          = "leave_room"
	CommandDisbandRoom        = "disband_room"
	CommandInviteUser         = "invite_user"
	CommandAcceptInvite       = "accept_invite"
	CommandDeclineInvite      = "decline_invite"
	CommandStartGame          = "start_game"
)

// Event types pushed from the lobby to clients.
const (
	EventServerShutdown      = "server_shutdown"
	EventInvitationReceived  = "invitation_received"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventRoomDisbanded       = "room_disbanded"
	EventConnectToGameServer = "connect_to_game_server"
)

// Database collections and actions.
const (
	CollectionUser = "user"
	CollectionRoom = "room"

	ActionCreate     = "create"
	ActionQuery      = "query"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionAddUser    = "add_user"
	ActionRemoveUser = "remove_user"
)

// In-match player actions.
const (
	ActionMoveLeft    = "move_left"
	ActionMoveRight   = "move_right"
	ActionRotate      = "rotate"
	ActionSoftDrop    = "soft_drop"
	ActionHardDrop    = "hard_drop"
	ActionChangeColor = "change_color"
	ActionReady       = "ready"
)

// Common data/parameter keys.
const (
	KeyUsername      = "username"
	KeyPassword      = "password"
	KeyRoomID        = "room_id"
	KeyMessage       = "message"
	KeyPrivacy       = "privacy"
	KeyUsers         = "users"
	KeyRoomInfo      = "room_info"
	KeyAddress       = "address"
	KeyOnline        = "online"
	KeyCurrentRoomID = "current_room_id"
	KeyInvitee       = "invitee_username"
	KeyInviter       = "inviter_username"
	KeyOwner         = "owner"
	KeySettings      = "settings"
	KeyGameOver      = "game_over"
	KeyWinner        = "winner"
	KeyColor         = "color"
)

// Privacy values for room settings.
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

// Schemas for every message kind on the wire. One connection role speaks a
// small, fixed subset of these.
var (
	// Any connection → lobby, first message.
	Handshake = NewSchema("handshake",
		Field{"connection_type", KindString},
	)

	// Lobby → any connection, handshake reply.
	HandshakeResponse = NewSchema("handshake_response",
		Field{"result", KindString},
		Field{"message", KindString},
	)

	// Client → lobby.
	ClientCommand = NewSchema("client_command",
		Field{"command", KindString},
		Field{"params", KindMap},
	)

	// Lobby → client, both command responses and pushed events.
	LobbyMessage = NewSchema("lobby_message",
		Field{"message_type", KindString},
		Field{"responding_command", KindString},
		Field{"event_type", KindString},
		Field{"result", KindString},
		Field{"data", KindMap},
	)

	// Lobby → database service.
	DBRequest = NewSchema("db_request",
		Field{"request_id", KindString},
		Field{"collection", KindString},
		Field{"action", KindString},
		Field{"data", KindMap},
	)

	// Database service → lobby.
	DBResponse = NewSchema("db_response",
		Field{"responding_request_id", KindString},
		Field{"result", KindString},
		Field{"data", KindMap},
	)

	// Player → game server, connect handshake.
	GameConnect = NewSchema("game_connect",
		Field{"username", KindString},
		Field{"room_id", KindString},
		Field{"role", KindString},
	)

	// Game server → player, connect reply. The seed is shared by both
	// players so their boards see an identical piece sequence.
	GameConnectResponse = NewSchema("game_connect_response",
		Field{"result", KindString},
		Field{"assigned_role", KindString},
		Field{"seed", KindInt},
		Field{"random_mode", KindString},
		Field{"gravity_settings", KindMap},
	)

	// Game server → both players when the readiness barrier opens.
	GameStarted = NewSchema("game_started",
		Field{"player1_username", KindString},
		Field{"player2_username", KindString},
		Field{"health", KindInt},
		Field{"now_piece", KindString},
		Field{"next_pieces", KindList},
		Field{"goal_score", KindInt},
	)

	// Player → game server during a match.
	GameAction = NewSchema("game_action",
		Field{"action", KindString},
		Field{"data", KindMap},
	)

	// Game server → both players, one combined update per tick.
	GameUpdate = NewSchema("game_update",
		Field{"state_for_player1", KindMap},
		Field{"state_for_player2", KindMap},
		Field{"extra", KindMap},
	)
)
