package httpapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/mnemo/internal/logger"
	"github.com/ent0n29/mnemo/internal/protocol"
)

type fakeWSConn struct {
	mu       sync.Mutex
	writeErr error
	written  []any
	closed   bool
}

func (c *fakeWSConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeWSConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeWSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestWriteLoopClosesConnOnWriteFailure(t *testing.T) {
	s := &Server{logger: logger.Nop()}
	conn := &fakeWSConn{writeErr: errors.New("broken pipe")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbound := make(chan any, 1)
	outbound <- protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "x"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, cancel, conn, outbound, s.logger)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("writeLoop did not return after a failed write")
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatalf("conn closed = false, want true so the read loop unblocks")
	}
	if ctx.Err() == nil {
		t.Fatalf("ctx not canceled after write failure")
	}
}

func TestWriteLoopStopsOnContextDone(t *testing.T) {
	s := &Server{logger: logger.Nop()}
	conn := &fakeWSConn{}
	ctx, cancel := context.WithCancel(context.Background())

	outbound := make(chan any, 1)
	outbound <- protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "x"}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, cancel, conn, outbound, s.logger)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.mu.Lock()
		n := len(conn.written)
		conn.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("written = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if conn.closed {
		t.Fatalf("writeLoop closed a healthy conn")
	}
}
