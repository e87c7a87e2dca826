package lobby

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/blockduel/backend/internal/protocol"
)

// attachedCorrelator returns a correlator with a database channel attached
// and the far end of that channel for the test to service.
func attachedCorrelator(t *testing.T) (*Correlator, *protocol.Channel) {
	t.Helper()
	near, far := net.Pipe()
	dbIn := protocol.NewChannel(near)
	dbOut := protocol.NewChannel(far)
	t.Cleanup(func() {
		_ = dbIn.Close()
		_ = dbOut.Close()
	})

	corr := NewCorrelator(zap.NewNop())
	require.NoError(t, corr.Attach(dbIn))
	return corr, dbOut
}

// serveEcho answers every request with the given code and the request's own
// data echoed back.
func serveEcho(ch *protocol.Channel, code string) {
	go func() {
		for {
			values, err := ch.Receive(context.Background(), protocol.DBRequest)
			if err != nil {
				return
			}
			id := values[0].(string)
			data, _ := values[3].(map[string]any)
			if err := ch.Send(protocol.DBResponse, id, code, data); err != nil {
				return
			}
		}
	}()
}

// drainRequests consumes requests without ever answering them.
func drainRequests(ch *protocol.Channel) {
	go func() {
		for {
			if _, err := ch.Receive(context.Background(), protocol.DBRequest); err != nil {
				return
			}
		}
	}()
}

func TestRoundtripDeliversMatchingResponse(t *testing.T) {
	corr, far := attachedCorrelator(t)
	serveEcho(far, protocol.ResultFound)

	res, err := corr.Roundtrip(context.Background(), protocol.CollectionUser, protocol.ActionQuery,
		map[string]any{protocol.KeyUsername: "alice"})
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultFound, res.Code)
	assert.Equal(t, "alice", res.Data[protocol.KeyUsername])
	assert.Zero(t, corr.PendingCount())
}

func TestRoundtripWithoutDatabaseFailsFast(t *testing.T) {
	corr := NewCorrelator(zap.NewNop())

	start := time.Now()
	_, err := corr.Roundtrip(context.Background(), protocol.CollectionUser, protocol.ActionQuery, nil)
	assert.ErrorIs(t, err, ErrDatabaseUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSecondDatabaseRejected(t *testing.T) {
	corr, _ := attachedCorrelator(t)

	near, far := net.Pipe()
	defer near.Close()
	defer far.Close()
	assert.Error(t, corr.Attach(protocol.NewChannel(near)))
}

func TestDetachFailsAllWaiters(t *testing.T) {
	near, farConn := net.Pipe()
	dbIn := protocol.NewChannel(near)
	far := protocol.NewChannel(farConn)
	t.Cleanup(func() {
		_ = dbIn.Close()
		_ = far.Close()
	})

	corr := NewCorrelator(zap.NewNop())
	require.NoError(t, corr.Attach(dbIn))
	drainRequests(far)

	const waiters = 3
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, err := corr.Roundtrip(context.Background(), protocol.CollectionRoom, protocol.ActionQuery, nil)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return corr.PendingCount() == waiters },
		time.Second, 5*time.Millisecond)

	corr.Detach(dbIn)

	for i := 0; i < waiters; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrDatabaseGone)
		case <-time.After(time.Second):
			t.Fatal("waiter did not observe detach")
		}
	}
	assert.Zero(t, corr.PendingCount())
	assert.False(t, corr.Connected())
}

func TestCancelledWaiterDeregistersSlot(t *testing.T) {
	corr, far := attachedCorrelator(t)
	drainRequests(far)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := corr.Roundtrip(ctx, protocol.CollectionUser, protocol.ActionQuery, nil)
		errs <- err
	}()
	require.Eventually(t, func() bool { return corr.PendingCount() == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter did not observe cancellation")
	}
	assert.Zero(t, corr.PendingCount())
}

func TestUnmatchedResponseDropped(t *testing.T) {
	corr := NewCorrelator(zap.NewNop())

	// Must not panic or register anything.
	corr.Fulfill("no-such-request", protocol.ResultSuccess, nil)
	assert.Zero(t, corr.PendingCount())
}

// Every waiter receives exactly the response carrying its own request id,
// no matter what order the database answers in.
func TestResponseOrderIndependence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		shuffleSeed := rapid.Int64().Draw(rt, "shuffleSeed")

		near, farConn := net.Pipe()
		dbIn := protocol.NewChannel(near)
		far := protocol.NewChannel(farConn)
		defer dbIn.Close()
		defer far.Close()

		corr := NewCorrelator(zap.NewNop())
		if err := corr.Attach(dbIn); err != nil {
			rt.Fatalf("attach: %v", err)
		}

		// Collect all n requests, then answer them in a drawn order.
		go func() {
			type pending struct {
				id   string
				data map[string]any
			}
			collected := make([]pending, 0, n)
			for len(collected) < n {
				values, err := far.Receive(context.Background(), protocol.DBRequest)
				if err != nil {
					return
				}
				data, _ := values[3].(map[string]any)
				collected = append(collected, pending{values[0].(string), data})
			}
			for _, i := range rand.New(rand.NewSource(shuffleSeed)).Perm(n) {
				if err := far.Send(protocol.DBResponse, collected[i].id, protocol.ResultSuccess, collected[i].data); err != nil {
					return
				}
			}
		}()

		var wg sync.WaitGroup
		results := make([]DBResult, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tag := string(rune('a' + i))
				results[i], errs[i] = corr.Roundtrip(context.Background(),
					protocol.CollectionUser, protocol.ActionQuery,
					map[string]any{"tag": tag})
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			if errs[i] != nil {
				rt.Fatalf("roundtrip %d: %v", i, errs[i])
			}
			want := string(rune('a' + i))
			if got := results[i].Data["tag"]; got != want {
				rt.Fatalf("roundtrip %d received tag %v, want %v", i, got, want)
			}
		}
		if corr.PendingCount() != 0 {
			rt.Fatalf("pending count %d after all responses", corr.PendingCount())
		}
	})
}
