// Package gameserver runs the authoritative session for exactly one
// two-player match: acceptance and role assignment, the readiness barrier,
// and the fixed-cadence game loop that applies queued actions and
// broadcasts combined state to both players.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/game/blocks"
	"github.com/blockduel/backend/internal/protocol"
)

const actionQueueDepth = 256

// playerConn is one accepted player. alive is guarded by the coordinator
// mutex; the broadcaster silently skips dead connections so one player's
// disconnect never fails the match for the other.
type playerConn struct {
	ch       *protocol.Channel
	username string
	role     string
	alive    bool
	ready    bool
}

type queuedAction struct {
	role   string
	action string
	data   map[string]any
}

// Coordinator accepts exactly two players for one room and drives the
// match loop. It implements the lifecycle Service interface.
type Coordinator struct {
	cfg    config.GameServerConfig
	logger *zap.Logger

	seed       int64
	randomMode string
	preset     GravityPreset
	match      *blocks.Match

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	wg       sync.WaitGroup

	mu             sync.Mutex
	roomID         string
	players        map[string]*playerConn
	started        bool
	sessionSpawned bool

	actions chan queuedAction
	readyCh chan struct{}
}

// NewCoordinator prepares a coordinator with a freshly drawn match seed.
func NewCoordinator(cfg config.GameServerConfig, logger *zap.Logger) (*Coordinator, error) {
	presets, err := LoadGravityPresets(cfg.GravityPresetsPath)
	if err != nil {
		return nil, err
	}
	preset, ok := presets[cfg.GravityPreset]
	if !ok {
		return nil, fmt.Errorf("unknown gravity preset %q", cfg.GravityPreset)
	}

	seed := rand.Int63n(1_000_001)
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		seed:       seed,
		randomMode: blocks.RandomModeUniform,
		preset:     preset,
		match:      blocks.NewMatch(seed, cfg.GoalScore, preset.DropSpeed),
		ctx:        ctx,
		cancel:     cancel,
		players:    make(map[string]*playerConn),
		actions:    make(chan queuedAction, actionQueueDepth),
		readyCh:    make(chan struct{}, 4),
	}, nil
}

// Start binds the listener and begins accepting player connections.
func (c *Coordinator) Start() error {
	listener, err := net.Listen("tcp", c.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", c.cfg.Addr(), err)
	}
	c.listener = listener
	c.logger.Info("game server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Int64("seed", c.seed),
	)

	c.wg.Add(1)
	go c.acceptLoop()
	return nil
}

// Stop closes the listener and both player connections, then waits for all
// goroutines to drain.
func (c *Coordinator) Stop() {
	c.cancel()
	if c.listener != nil {
		_ = c.listener.Close()
	}
	c.mu.Lock()
	for _, p := range c.players {
		_ = p.ch.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Addr returns the bound listen address.
func (c *Coordinator) Addr() string {
	if c.listener != nil {
		return c.listener.Addr().String()
	}
	return ""
}

func (c *Coordinator) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("accept failed", zap.Error(err))
			}
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleConn(conn)
		}()
	}
}

// handleConn performs the connect handshake and either seats the player or
// rejects the socket. A rejection never disturbs an already-seated pair.
func (c *Coordinator) handleConn(raw net.Conn) {
	ch := protocol.NewChannel(raw)

	values, err := ch.Receive(c.ctx, protocol.GameConnect)
	if err != nil {
		_ = ch.Close()
		return
	}
	username := values[0].(string)
	roomID := values[1].(string)
	role := values[2].(string)

	if role != "player" {
		c.reject(ch, "Unsupported role")
		return
	}

	c.mu.Lock()
	if c.roomID == "" {
		c.roomID = roomID
	} else if c.roomID != roomID {
		c.mu.Unlock()
		c.logger.Warn("mismatched room id, rejecting connection",
			zap.String("got", roomID),
			zap.String("want", c.roomID),
		)
		c.reject(ch, "Mismatched room ID")
		return
	}
	if len(c.players) >= 2 {
		c.mu.Unlock()
		c.reject(ch, "Game is full")
		return
	}

	assigned := blocks.RolePlayer1
	if _, ok := c.players[blocks.RolePlayer1]; ok {
		assigned = blocks.RolePlayer2
	}
	player := &playerConn{ch: ch, username: username, role: assigned, alive: true}
	c.players[assigned] = player
	c.mu.Unlock()

	if err = ch.Send(protocol.GameConnectResponse,
		protocol.ResultSuccess, assigned, int(c.seed), c.randomMode, c.preset.Settings(),
	); err != nil {
		c.dropPlayer(player)
		return
	}
	c.logger.Info("player connected",
		zap.String("username", username),
		zap.String("role", assigned),
		zap.String("room_id", roomID),
	)

	c.mu.Lock()
	spawn := len(c.players) == 2 && !c.sessionSpawned
	if spawn {
		c.sessionSpawned = true
	}
	c.mu.Unlock()
	if spawn {
		c.wg.Add(1)
		go c.runSession()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.receiveActions(player)
	}()
}

func (c *Coordinator) reject(ch *protocol.Channel, reason string) {
	_ = ch.Send(protocol.GameConnectResponse, protocol.ResultFailure, "", 0, "", map[string]any{
		protocol.KeyMessage: reason,
	})
	_ = ch.Close()
}

// receiveActions is one player's read loop: blocking-read an action,
// enqueue it, repeat. Before the match starts only ready is meaningful;
// anything else is discarded.
func (c *Coordinator) receiveActions(p *playerConn) {
	for {
		values, err := p.ch.Receive(c.ctx, protocol.GameAction)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Info("player disconnected",
					zap.String("role", p.role),
					zap.Error(err),
				)
			}
			c.dropPlayer(p)
			return
		}
		action := values[0].(string)
		data, _ := values[1].(map[string]any)

		c.mu.Lock()
		started := c.started
		if !started && action == protocol.ActionReady && !p.ready {
			p.ready = true
			c.mu.Unlock()
			c.logger.Info("player ready", zap.String("role", p.role))
			c.readyCh <- struct{}{}
			continue
		}
		c.mu.Unlock()

		if !started {
			c.logger.Info("ignoring action before start",
				zap.String("role", p.role),
				zap.String("action", action),
			)
			continue
		}

		select {
		case c.actions <- queuedAction{role: p.role, action: action, data: data}:
		default:
			c.logger.Warn("action queue full, dropping",
				zap.String("role", p.role),
				zap.String("action", action),
			)
		}
	}
}

// dropPlayer marks the connection dead. Before the match starts the seat is
// freed so a reconnecting player can take it; after start the slot stays so
// the broadcaster keeps skipping it.
func (c *Coordinator) dropPlayer(p *playerConn) {
	c.mu.Lock()
	p.alive = false
	if !c.started && c.players[p.role] == p {
		delete(c.players, p.role)
	}
	c.mu.Unlock()
	_ = p.ch.Close()
}

// runSession holds the readiness barrier, announces the start, and then
// runs the authoritative loop until the match ends or the process stops.
func (c *Coordinator) runSession() {
	defer c.wg.Done()

	for !c.bothReady() {
		select {
		case <-c.readyCh:
		case <-c.ctx.Done():
			return
		}
	}

	c.mu.Lock()
	c.started = true
	p1 := c.players[blocks.RolePlayer1]
	p2 := c.players[blocks.RolePlayer2]
	c.mu.Unlock()

	for _, p := range []*playerConn{p1, p2} {
		info := c.match.StartInfoFor(p.role)
		if err := p.ch.Send(protocol.GameStarted,
			p1.username, p2.username, info.Health, info.NowPiece, info.NextPieces, c.match.GoalScore(),
		); err != nil {
			c.dropPlayer(p)
		}
	}
	c.logger.Info("both players ready, starting game loop",
		zap.String("room_id", c.roomID),
	)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	prev := time.Now()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.drainActions()
			c.match.Update(now.Sub(prev).Seconds())
			prev = now

			over, winner := c.match.Over()
			extra := map[string]any{}
			if over {
				extra[protocol.KeyGameOver] = true
				extra[protocol.KeyWinner] = winner
			}
			c.broadcast(
				c.match.StateFor(blocks.RolePlayer1),
				c.match.StateFor(blocks.RolePlayer2),
				extra,
			)
			if over {
				c.logger.Info("match complete", zap.String("winner", winner))
				c.cancel()
				return
			}
		}
	}
}

func (c *Coordinator) bothReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p1, ok1 := c.players[blocks.RolePlayer1]
	p2, ok2 := c.players[blocks.RolePlayer2]
	return ok1 && ok2 && p1.ready && p2.ready
}

func (c *Coordinator) drainActions() {
	for {
		select {
		case a := <-c.actions:
			c.match.HandleAction(a.role, a.action, a.data)
		default:
			return
		}
	}
}

// broadcast sends one combined update to every live player. The liveness
// snapshot is taken under the mutex but the sends happen outside it, so a
// stalled socket never blocks action intake or the drop path.
func (c *Coordinator) broadcast(state1, state2, extra map[string]any) {
	c.mu.Lock()
	live := make([]*playerConn, 0, len(c.players))
	for _, p := range c.players {
		if p.alive {
			live = append(live, p)
		}
	}
	c.mu.Unlock()

	for _, p := range live {
		if err := p.ch.Send(protocol.GameUpdate, state1, state2, extra); err != nil {
			c.mu.Lock()
			p.alive = false
			c.mu.Unlock()
		}
	}
}
