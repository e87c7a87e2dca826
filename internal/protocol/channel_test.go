package protocol

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeChannels(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return NewChannel(a), NewChannel(b)
}

func TestSendReceive(t *testing.T) {
	left, right := pipeChannels(t)

	go func() {
		_ = left.Send(Handshake, ConnTypeClient)
	}()

	values, err := right.Receive(context.Background(), Handshake)
	require.NoError(t, err)
	assert.Equal(t, []any{ConnTypeClient}, values)
}

func TestReceiveZeroLengthIsViolation(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	ch := NewChannel(b)

	go func() {
		var header [4]byte
		_, _ = a.Write(header[:])
	}()

	_, err := ch.Receive(context.Background(), Handshake)
	var violation *ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "zero length")

	// The channel is unusable afterward, even if valid frames follow.
	go func() {
		left := NewChannel(a)
		_ = left.Send(Handshake, ConnTypeClient)
	}()
	_, err = ch.Receive(context.Background(), Handshake)
	assert.ErrorAs(t, err, &violation)
}

func TestReceiveOversizeLengthIsViolation(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	ch := NewChannel(b)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
		_, _ = a.Write(header[:])
	}()

	_, err := ch.Receive(context.Background(), Handshake)
	var violation *ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Reason, "exceeds limit")

	// Subsequent receives keep failing with the violation.
	_, err = ch.Receive(context.Background(), Handshake)
	assert.ErrorAs(t, err, &violation)
}

func TestSendOversizeBodyRejected(t *testing.T) {
	left, _ := pipeChannels(t)

	big := make([]byte, MaxFrameSize)
	for i := range big {
		big[i] = 'x'
	}
	err := left.Send(HandshakeResponse, ResultConfirmed, string(big))

	var violation *ViolationError
	require.ErrorAs(t, err, &violation)
}

func TestReceiveObservesCancellation(t *testing.T) {
	_, right := pipeChannels(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := right.Receive(ctx, Handshake)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation should interrupt the pending read promptly")
}

func TestReceiveAfterPeerClose(t *testing.T) {
	left, right := pipeChannels(t)

	require.NoError(t, left.Close())

	_, err := right.Receive(context.Background(), Handshake)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestReceiveUsableAfterCancelledReceive(t *testing.T) {
	left, right := pipeChannels(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := right.Receive(ctx, Handshake)
	require.ErrorIs(t, err, context.Canceled)

	go func() {
		_ = left.Send(Handshake, ConnTypeDatabase)
	}()

	values, err := right.Receive(context.Background(), Handshake)
	require.NoError(t, err)
	assert.Equal(t, ConnTypeDatabase, values[0])
}

func TestConcurrentSendsStayFramed(t *testing.T) {
	left, right := pipeChannels(t)

	const sends = 20
	for i := 0; i < sends; i++ {
		go func() {
			_ = left.Send(Handshake, ConnTypeClient)
		}()
	}

	for i := 0; i < sends; i++ {
		values, err := right.Receive(context.Background(), Handshake)
		require.NoError(t, err)
		assert.Equal(t, ConnTypeClient, values[0])
	}
}
