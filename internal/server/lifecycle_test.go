package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeService struct {
	started atomic.Bool
	stopped atomic.Bool
	block   chan struct{}
	startWg chan struct{}
	err     error
}

func newFakeService() *fakeService {
	return &fakeService{block: make(chan struct{})}
}

func (f *fakeService) Start() error {
	f.started.Store(true)
	if f.err != nil {
		return f.err
	}
	<-f.block
	return nil
}

func (f *fakeService) Stop() {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.block)
	}
}

func TestLifecycleStopsOnContextCancel(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	svc := newFakeService()
	lc.Add("fake", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- lc.Run(ctx)
	}()

	// Give the service a moment to start, then cancel.
	assert.Eventually(t, func() bool { return svc.started.Load() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down")
	}
	assert.True(t, svc.stopped.Load())
}

func TestLifecycleStopsAllOnServiceFailure(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())
	healthy := newFakeService()
	failing := newFakeService()
	failing.err = assert.AnError
	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() {
		done <- lc.Run(context.Background())
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle did not shut down after service failure")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleStopsInReverseOrder(t *testing.T) {
	lc := NewLifecycle(zap.NewNop())

	var order []string
	first := &orderedService{name: "first", order: &order}
	second := &orderedService{name: "second", order: &order}
	lc.Add("first", first)
	lc.Add("second", second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = lc.Run(ctx)

	assert.Equal(t, []string{"second", "first"}, order)
}

type orderedService struct {
	name  string
	order *[]string
}

func (o *orderedService) Start() error { return nil }

func (o *orderedService) Stop() {
	*o.order = append(*o.order, o.name)
}
