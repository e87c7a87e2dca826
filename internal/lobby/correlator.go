package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/protocol"
)

// ErrDatabaseUnavailable is returned when a request is issued while no
// database service is connected. Callers fail fast instead of blocking.
var ErrDatabaseUnavailable = errors.New("no database connected")

// ErrDatabaseGone is returned to waiters whose request was in flight when
// the database connection dropped.
var ErrDatabaseGone = errors.New("database connection lost")

// DBResult is the outcome of one correlated database round trip.
type DBResult struct {
	Code string
	Data map[string]any
}

// Correlator matches asynchronous database responses to their originating
// requests by id. Each round trip registers a one-shot channel before
// sending, so responses may complete in any order relative to requests.
type Correlator struct {
	logger *zap.Logger

	mu      sync.Mutex
	db      *protocol.Channel
	pending map[string]chan DBResult
}

// NewCorrelator creates a Correlator with no database attached.
func NewCorrelator(logger *zap.Logger) *Correlator {
	return &Correlator{
		logger:  logger,
		pending: make(map[string]chan DBResult),
	}
}

// Attach registers the single database connection. Exactly one connection
// may hold the database role; a second Attach fails.
func (c *Correlator) Attach(ch *protocol.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return errors.New("database server already connected")
	}
	c.db = ch
	return nil
}

// Detach drops the database connection and fails every in-flight waiter
// with ErrDatabaseGone.
func (c *Correlator) Detach(ch *protocol.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != ch {
		return
	}
	c.db = nil
	for id, slot := range c.pending {
		close(slot)
		delete(c.pending, id)
	}
}

// Connected reports whether a database connection is attached.
func (c *Correlator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Roundtrip sends one request and blocks the calling goroutine until the
// matching response arrives, the database connection drops, or ctx is
// cancelled. A cancelled waiter deregisters its slot so pending entries
// cannot accumulate.
func (c *Correlator) Roundtrip(ctx context.Context, collection, action string, data map[string]any) (DBResult, error) {
	if data == nil {
		data = map[string]any{}
	}

	c.mu.Lock()
	db := c.db
	if db == nil {
		c.mu.Unlock()
		return DBResult{}, ErrDatabaseUnavailable
	}
	id := uuid.NewString()
	slot := make(chan DBResult, 1)
	c.pending[id] = slot
	c.mu.Unlock()

	if err := db.Send(protocol.DBRequest, id, collection, action, data); err != nil {
		c.discard(id)
		return DBResult{}, fmt.Errorf("sending database request: %w", err)
	}

	select {
	case res, ok := <-slot:
		if !ok {
			return DBResult{}, ErrDatabaseGone
		}
		return res, nil
	case <-ctx.Done():
		c.discard(id)
		return DBResult{}, ctx.Err()
	}
}

// Fulfill delivers a response to the waiter registered under id. Responses
// for unknown or already-consumed ids are dropped and logged, never retried.
func (c *Correlator) Fulfill(id, code string, data map[string]any) {
	c.mu.Lock()
	slot, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping unmatched database response",
			zap.String("request_id", id),
			zap.String("result", code),
		)
		return
	}
	slot <- DBResult{Code: code, Data: data}
}

// PendingCount returns the number of in-flight requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) discard(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
