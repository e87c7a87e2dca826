// Package lobby implements the lobby server: it multiplexes client,
// database, and game-server connections over the framed protocol, enforces
// session, room, and invitation invariants, and correlates asynchronous
// requests to the database service.
package lobby

import (
	"sync"

	"github.com/blockduel/backend/internal/protocol"
)

// Client couples one accepted client connection with its lobby-side session
// state. The owning handler goroutine performs all command processing; other
// handlers only deliver events through it, so the session fields are guarded
// by a small mutex rather than confined to one goroutine.
type Client struct {
	ch *protocol.Channel

	mu       sync.Mutex
	username string
	roomID   string
	owner    bool
}

// NewClient wraps a channel in an anonymous client session.
func NewClient(ch *protocol.Channel) *Client {
	return &Client{ch: ch}
}

// Username returns the bound username, or "" while anonymous.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// RoomID returns the room the client currently occupies, or "".
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// IsOwner reports whether the client owns its current room.
func (c *Client) IsOwner() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *Client) bind(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
}

func (c *Client) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = ""
	c.roomID = ""
	c.owner = false
}

func (c *Client) setRoom(roomID string, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.owner = owner
}

func (c *Client) clearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.owner = false
}

// Respond sends a command response to this client.
func (c *Client) Respond(command, result string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	return c.ch.Send(protocol.LobbyMessage,
		protocol.MessageTypeResponse, command, "", result, data)
}

// Event pushes an unsolicited event to this client.
func (c *Client) Event(eventType string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	return c.ch.Send(protocol.LobbyMessage,
		protocol.MessageTypeEvent, "", eventType, "", data)
}

// Registry tracks connected clients and their bound usernames. All methods
// are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[*Client]struct{}),
		byUser:  make(map[string]*Client),
	}
}

// Add registers a newly accepted client connection.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// Remove drops a client connection and any username binding it holds.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	if c.Username() != "" {
		if bound, ok := r.byUser[c.Username()]; ok && bound == c {
			delete(r.byUser, c.Username())
		}
	}
}

// Bind associates a username with a client after a successful login.
func (r *Registry) Bind(c *Client, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.bind(username)
	r.byUser[username] = c
}

// Unbind clears a client's username binding after logout.
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Username() != "" {
		if bound, ok := r.byUser[c.Username()]; ok && bound == c {
			delete(r.byUser, c.Username())
		}
	}
	c.unbind()
}

// Lookup returns the client a username is bound to, if connected.
func (r *Registry) Lookup(username string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[username]
	return c, ok
}

// Count returns the number of connected client connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
