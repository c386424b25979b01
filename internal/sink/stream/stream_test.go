package stream

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

// fakeConn records written lines. Only the methods the sink uses are implemented.
type fakeConn struct {
	net.Conn

	mu       sync.Mutex
	lines    []string
	failNext int
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.failNext > 0 {
		c.failNext--
		return 0, errors.New("connection reset by peer")
	}
	c.lines = append(c.lines, string(p))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// dialer hands out the queued connections in order and counts dials.
type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
}

func (d *dialer) Dial(context.Context, string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func event(msg string) model.OutboundEvent {
	m := msg
	return model.OutboundEvent{Level: "info", Msg: &m, Table: "AppLog", AccountName: "acct", RowKey: msg}
}

func newSink(d *dialer, c clock.Clock) *Sink {
	return New(Options{
		Addr:       "logstash:5044",
		RetryDelay: time.Millisecond,
		Dial:       d.Dial,
		Clock:      c,
		Logger:     zerolog.Nop(),
	})
}

func TestSend_WritesOneLinePerEvent(t *testing.T) {
	conn := &fakeConn{}
	d := &dialer{conns: []*fakeConn{conn}}
	s := newSink(d, nil)
	defer s.Close()

	n, err := s.SendBatch(context.Background(), []model.OutboundEvent{event("a"), event("b")})
	if err != nil || n != 2 {
		t.Fatalf("SendBatch = %d, %v", n, err)
	}
	lines := conn.Lines()
	if len(lines) != 2 || !strings.Contains(lines[0], `"msg":"a"`) || !strings.HasSuffix(lines[1], "\n") {
		t.Fatalf("unexpected lines: %q", lines)
	}
	if d.Dials() != 1 {
		t.Fatalf("dials = %d, want 1", d.Dials())
	}
}

func TestSend_ReconnectsAndResendsAfterWriteFailure(t *testing.T) {
	broken := &fakeConn{failNext: 1}
	healthy := &fakeConn{}
	d := &dialer{conns: []*fakeConn{broken, healthy}}
	s := newSink(d, nil)
	defer s.Close()

	if err := s.Send(context.Background(), event("a")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !broken.Closed() {
		t.Fatal("failed connection should be closed")
	}
	if d.Dials() != 2 {
		t.Fatalf("dials = %d, want 2", d.Dials())
	}
	if lines := healthy.Lines(); len(lines) != 1 || !strings.Contains(lines[0], `"msg":"a"`) {
		t.Fatalf("event not resent on new connection: %q", lines)
	}
}

func TestSend_StopOnFailureGivesUpWithoutBlockingOthers(t *testing.T) {
	broken := &fakeConn{failNext: 1}
	healthy := &fakeConn{}
	d := &dialer{conns: []*fakeConn{broken, healthy}}
	s := newSink(d, nil)
	defer s.Close()

	n, err := s.SendBatch(context.Background(), []model.OutboundEvent{event("a"), event("b")}, sink.StopOnFailure())
	if err == nil || n != 0 {
		t.Fatalf("SendBatch = %d, %v; want 0 and an error", n, err)
	}

	if err := s.Send(context.Background(), event("c")); err != nil {
		t.Fatalf("send after best-effort failure: %v", err)
	}
	if lines := healthy.Lines(); len(lines) != 1 {
		t.Fatalf("healthy lines = %q", lines)
	}
}

func TestSend_RotatesConnectionAfterLifetime(t *testing.T) {
	first := &fakeConn{}
	second := &fakeConn{}
	d := &dialer{conns: []*fakeConn{first, second}}
	fc := clock.NewFake(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))
	s := newSink(d, fc)
	defer s.Close()

	ctx := context.Background()
	if err := s.Send(ctx, event("a")); err != nil {
		t.Fatal(err)
	}
	fc.Advance(11 * time.Minute)
	if err := s.Send(ctx, event("b")); err != nil {
		t.Fatal(err)
	}
	if !first.Closed() {
		t.Fatal("connection past its lifetime should close after the next event")
	}
	if got := len(first.Lines()); got != 2 {
		t.Fatalf("first connection lines = %d, want 2", got)
	}
	if err := s.Send(ctx, event("c")); err != nil {
		t.Fatal(err)
	}
	if d.Dials() != 2 || len(second.Lines()) != 1 {
		t.Fatalf("dials=%d second=%q", d.Dials(), second.Lines())
	}
}

func TestSend_ConcurrentSendersDoNotInterleave(t *testing.T) {
	conn := &fakeConn{}
	d := &dialer{conns: []*fakeConn{conn}}
	s := newSink(d, nil)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SendBatch(context.Background(), []model.OutboundEvent{event("x"), event("y")}); err != nil {
				t.Errorf("send: %v", err)
			}
		}()
	}
	wg.Wait()

	lines := conn.Lines()
	if len(lines) != 40 {
		t.Fatalf("lines = %d, want 40", len(lines))
	}
	for _, l := range lines {
		if strings.Count(l, "\n") != 1 || !strings.HasPrefix(l, "{") {
			t.Fatalf("corrupt line %q", l)
		}
	}
}

func TestSend_ContextCancelStopsRetryLoop(t *testing.T) {
	d := &dialer{err: errors.New("connection refused")}
	s := newSink(d, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	n, err := s.SendBatch(ctx, []model.OutboundEvent{event("a")})
	if n != 0 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SendBatch = %d, %v; want 0, deadline exceeded", n, err)
	}
	if d.Dials() < 2 {
		t.Fatalf("expected repeated dial attempts, got %d", d.Dials())
	}
}

func TestSend_AfterClose(t *testing.T) {
	s := newSink(&dialer{}, nil)
	s.Close()
	if err := s.Send(context.Background(), event("a")); !errors.Is(err, sink.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
