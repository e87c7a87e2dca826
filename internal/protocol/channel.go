package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxFrameSize is the largest body a frame may carry. A length prefix of 0
// or anything above this limit is a protocol violation.
const MaxFrameSize = 65536

// ViolationError marks a framing or handshake violation. The connection
// carrying it must be torn down; it is never retried.
type ViolationError struct {
	Reason string
}

func (e *ViolationError) Error() string {
	return "protocol violation: " + e.Reason
}

// Channel frames a stream socket. Sends are atomic (one write per frame,
// guarded by a mutex); receives block until a full frame, context
// cancellation, or peer close. Safe for one concurrent reader and any number
// of concurrent writers.
type Channel struct {
	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex

	// broken records an inbound framing violation. The stream is out of
	// sync past that point; only the reading goroutine touches it.
	broken *ViolationError
}

// NewChannel wraps an open connection.
func NewChannel(conn net.Conn) *Channel {
	return &Channel{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 4096),
	}
}

// Dial connects to addr and wraps the connection in a Channel.
func Dial(ctx context.Context, addr string) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialling %s: %w", addr, err)
	}
	return NewChannel(conn), nil
}

// Send serializes values against the schema and writes the length-prefixed
// frame as a single write.
func (c *Channel) Send(s Schema, values ...any) error {
	body, err := s.Encode(values...)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return &ViolationError{Reason: fmt.Sprintf("outgoing %s frame of %d bytes exceeds limit", s.Name(), len(body))}
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", s.Name(), err)
	}
	return nil
}

// Receive reads one frame and decodes it against the schema, returning the
// values in schema-declared order. It blocks until a frame arrives, ctx is
// cancelled (the pending read is interrupted and ctx.Err() returned), or the
// peer closes the connection. A ViolationError leaves the stream out of
// sync: every later Receive returns the same error, and the caller must
// close the channel.
func (c *Channel) Receive(ctx context.Context, s Schema) ([]any, error) {
	if c.broken != nil {
		return nil, c.broken
	}

	stop := c.watchContext(ctx)
	defer stop()

	var header [4]byte
	if err := c.readFull(ctx, header[:]); err != nil {
		return nil, fmt.Errorf("reading %s frame header: %w", s.Name(), err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		c.broken = &ViolationError{Reason: "frame with zero length"}
		return nil, c.broken
	}
	if length > MaxFrameSize {
		c.broken = &ViolationError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit", length)}
		return nil, c.broken
	}

	body := make([]byte, length)
	if err := c.readFull(ctx, body); err != nil {
		return nil, fmt.Errorf("reading %s frame body: %w", s.Name(), err)
	}

	return s.Decode(body)
}

// watchContext interrupts a pending read by expiring the read deadline when
// ctx is cancelled. The returned stop function must be called before the next
// Receive; it waits for the watcher to exit and clears the deadline.
func (c *Channel) watchContext(ctx context.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		_ = c.conn.SetReadDeadline(time.Time{})
	}
}

func (c *Channel) readFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := c.reader.Read(buf[read:])
		read += n
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// Close closes the underlying connection, failing any blocked Receive.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address of the peer.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
