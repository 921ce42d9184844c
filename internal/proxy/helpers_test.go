package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gateway-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
)

// testLogger returns a quiet logger for tests.
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeConn is an in-memory upstream socket. Frames written by the
// session accumulate in sent; frames queued with deliver appear to the
// session's read loop. Close unblocks the reader with an error.
type fakeConn struct {
	inbox chan []byte
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox: make(chan []byte, 16),
		done:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbox:
		return websocket.TextMessage, msg, nil
	case <-c.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return errors.New("use of closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) deliver(raw string) {
	c.inbox <- []byte(raw)
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) sentFrame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.sent[i]...)
}

// fakeConnector hands out queued fakeConns, or fails every dial when err
// is set.
type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (f *fakeConnector) Connect(context.Context) (UpstreamConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.conns) == 0 {
		return nil, errors.New("no upstream available")
	}
	c := f.conns[0]
	f.conns = f.conns[1:]
	return c, nil
}

func (f *fakeConnector) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// fakeScheduler captures scheduled callbacks so tests decide when timers
// fire.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
}

type scheduledCall struct {
	delay time.Duration
	fn    func()
}

type fakeTimer struct{}

func (fakeTimer) Stop() bool { return true }

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCall{delay: d, fn: f})
	return fakeTimer{}
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	call := s.calls[i]
	s.mu.Unlock()
	call.fn()
}

func (s *fakeScheduler) delayAt(i int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i].delay
}

// notifyEvent is one recorded control message.
type notifyEvent struct {
	Type string
	Data any
}

// recorderNotifier captures everything the session tells the client.
type recorderNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
	closes []int
}

func (n *recorderNotifier) Notify(msgType string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifyEvent{Type: msgType, Data: data})
}

func (n *recorderNotifier) CloseClient(code int, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closes = append(n.closes, code)
}

func (n *recorderNotifier) eventCount(msgType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.Type == msgType {
			count++
		}
	}
	return count
}

func (n *recorderNotifier) lastEvent(msgType string) (notifyEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Type == msgType {
			return n.events[i], true
		}
	}
	return notifyEvent{}, false
}

func (n *recorderNotifier) closeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.closes)
}
