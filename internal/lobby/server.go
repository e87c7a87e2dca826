package lobby

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/protocol"
)

// Server accepts connections on a TCP port, classifies each one by its
// handshake, and runs the matching handler on a per-connection goroutine.
type Server struct {
	cfg    config.LobbyConfig
	logger *zap.Logger

	registry   *Registry
	correlator *Correlator
	invites    *Invitations

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewServer creates a lobby server with the given configuration.
//
// Precondition: logger must be non-nil.
func NewServer(cfg config.LobbyConfig, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger,
		registry:   NewRegistry(),
		correlator: NewCorrelator(logger),
		invites:    NewInvitations(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start opens the listener and begins accepting connections.
//
// Precondition: The server must not already be running.
func (s *Server) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("lobby server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Error("accepting connection", zap.Error(err))
				continue
			}
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Stop shuts the server down: the shutdown signal is observed by every
// connection handler, clients get a server_shutdown event, and Stop waits
// for all handlers to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	s.cancel()
	if listener != nil {
		_ = listener.Close()
	}
	s.wg.Wait()

	s.logger.Info("lobby server stopped")
}

// Addr returns the actual listening address, or "" if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleConn performs the role handshake and routes the connection. The
// first message must declare connection_type; anything else tears the
// connection down.
func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()
	addr := raw.RemoteAddr().String()

	ch := protocol.NewChannel(raw)
	defer ch.Close()

	values, err := ch.Receive(s.ctx, protocol.Handshake)
	if err != nil {
		s.logger.Debug("handshake failed",
			zap.String("remote_addr", addr),
			zap.Error(err),
		)
		return
	}
	connType := values[0].(string)

	switch connType {
	case protocol.ConnTypeClient:
		s.handleClient(ch, addr)
	case protocol.ConnTypeDatabase:
		s.handleDatabase(ch, addr)
	case protocol.ConnTypeGameServer:
		s.handleGameServer(ch, addr)
	default:
		s.logger.Warn("rejecting unknown connection type",
			zap.String("remote_addr", addr),
			zap.String("connection_type", connType),
		)
		_ = ch.Send(protocol.HandshakeResponse, protocol.ResultError,
			fmt.Sprintf("unknown connection type %q", connType))
	}
}

// handleDatabase owns the single database connection: it registers with the
// correlator, then loops delivering responses to their waiters. A second
// database handshake is rejected outright.
func (s *Server) handleDatabase(ch *protocol.Channel, addr string) {
	if err := s.correlator.Attach(ch); err != nil {
		s.logger.Warn("rejecting duplicate database connection",
			zap.String("remote_addr", addr),
		)
		_ = ch.Send(protocol.HandshakeResponse, protocol.ResultError, err.Error())
		return
	}
	defer s.correlator.Detach(ch)

	if err := ch.Send(protocol.HandshakeResponse, protocol.ResultConfirmed, "database server connected"); err != nil {
		s.logger.Error("confirming database handshake", zap.Error(err))
		return
	}
	s.logger.Info("database server connected", zap.String("remote_addr", addr))

	for {
		values, err := ch.Receive(s.ctx, protocol.DBResponse)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("database connection lost", zap.Error(err))
			}
			break
		}
		id := values[0].(string)
		code := values[1].(string)
		data, _ := values[2].(map[string]any)
		s.correlator.Fulfill(id, code, data)
	}

	s.logger.Info("database server disconnected", zap.String("remote_addr", addr))
}

// handleGameServer confirms a game-server registration and holds the
// connection open. Game servers speak no further messages to the lobby on
// this connection; match traffic flows on their own listener.
func (s *Server) handleGameServer(ch *protocol.Channel, addr string) {
	if err := ch.Send(protocol.HandshakeResponse, protocol.ResultConfirmed, "game server registered"); err != nil {
		s.logger.Error("confirming game server handshake", zap.Error(err))
		return
	}
	s.logger.Info("game server registered", zap.String("remote_addr", addr))

	for {
		if _, err := ch.Receive(s.ctx, protocol.Handshake); err != nil {
			break
		}
		s.logger.Warn("unexpected message from game server", zap.String("remote_addr", addr))
	}

	s.logger.Info("game server disconnected", zap.String("remote_addr", addr))
}

// handleClient runs the session command loop for one client connection.
func (s *Server) handleClient(ch *protocol.Channel, addr string) {
	start := time.Now()

	client := NewClient(ch)
	s.registry.Add(client)
	defer s.registry.Remove(client)

	sess := &session{
		srv:    s,
		client: client,
		logger: s.logger.With(zap.String("remote_addr", addr)),
	}
	sess.run(s.ctx)

	s.logger.Info("client session ended",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}
