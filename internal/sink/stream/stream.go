// Package stream delivers events as newline-delimited JSON over one
// persistent TCP connection. A single goroutine owns the connection and
// serves send requests from a queue, so writes never interleave.
package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

const (
	defaultRetryDelay  = 2 * time.Second
	defaultMaxLifetime = 10 * time.Minute
	defaultDialTimeout = 10 * time.Second
)

// DialFunc opens the outbound connection.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Options configures a stream Sink.
type Options struct {
	Addr string
	// RetryDelay is the pause between a failed write and the reconnect. Default: 2s.
	RetryDelay time.Duration
	// MaxLifetime bounds how long one connection is reused. Default: 10m.
	MaxLifetime time.Duration
	// DialTimeout bounds connection establishment. Default: 10s.
	DialTimeout time.Duration
	// WriteTimeout, when set, is applied as a write deadline to each line.
	WriteTimeout time.Duration

	Dial   DialFunc
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Sink is the streaming delivery channel.
type Sink struct {
	opts Options
	log  zerolog.Logger

	requests  chan *request
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	conn        net.Conn
	connectedAt time.Time
}

type request struct {
	ctx           context.Context
	lines         [][]byte
	stopOnFailure bool
	reply         chan result
}

type result struct {
	delivered int
	err       error
}

// New starts the connection-owning goroutine. The connection itself is
// opened lazily by the first send.
func New(opts Options) *Sink {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = defaultMaxLifetime
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: opts.DialTimeout}
		opts.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	s := &Sink{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "stream_sink").Str("addr", opts.Addr).Logger(),
		requests: make(chan *request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) Send(ctx context.Context, event model.OutboundEvent) error {
	return sink.SendOne(ctx, s, event)
}

// SendBatch writes events one line each. Unless StopOnFailure is given, a
// failed write is retried on a fresh connection until it succeeds or ctx
// is done; the event being written when a failure hits may therefore be
// delivered twice.
func (s *Sink) SendBatch(ctx context.Context, events []model.OutboundEvent, opts ...sink.SendOption) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	lines := make([][]byte, 0, len(events))
	var encErr error
	for _, ev := range events {
		line, err := sink.Line(ev)
		if err != nil {
			encErr = fmt.Errorf("stream: encode event %s: %w", ev.RowKey, err)
			break
		}
		lines = append(lines, line)
	}

	delivered := 0
	if len(lines) > 0 {
		req := &request{
			ctx:           ctx,
			lines:         lines,
			stopOnFailure: sink.Apply(opts).StopOnFailure,
			reply:         make(chan result, 1),
		}
		select {
		case s.requests <- req:
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.quit:
			return 0, sink.ErrClosed
		}
		var res result
		select {
		case res = <-req.reply:
		case <-s.done:
			select {
			case res = <-req.reply:
			default:
				return 0, sink.ErrClosed
			}
		}
		if res.err != nil {
			return res.delivered, res.err
		}
		delivered = res.delivered
	}
	return delivered, encErr
}

// Close stops the owner goroutine and closes the connection. Senders
// blocked on the queue get sink.ErrClosed.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
	return nil
}

func (s *Sink) run() {
	defer close(s.done)
	defer s.disconnect()
	for {
		select {
		case <-s.quit:
			return
		case req := <-s.requests:
			n, err := s.serve(req)
			req.reply <- result{delivered: n, err: err}
		}
	}
}

func (s *Sink) serve(req *request) (int, error) {
	for i, line := range req.lines {
		if err := s.deliver(req, line); err != nil {
			return i, err
		}
	}
	return len(req.lines), nil
}

// deliver writes one line, reconnecting after RetryDelay on failure.
func (s *Sink) deliver(req *request, line []byte) error {
	for {
		err := s.write(req.ctx, line)
		if err == nil {
			s.rotateIfExpired()
			return nil
		}
		s.log.Warn().Err(err).Msg("stream write failed, reconnecting")
		s.disconnect()
		if req.stopOnFailure {
			return fmt.Errorf("stream: %w", err)
		}
		select {
		case <-s.opts.Clock.After(s.opts.RetryDelay):
		case <-req.ctx.Done():
			return req.ctx.Err()
		case <-s.quit:
			return sink.ErrClosed
		}
	}
}

func (s *Sink) write(ctx context.Context, line []byte) error {
	if s.conn == nil {
		dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
		conn, err := s.opts.Dial(dialCtx, s.opts.Addr)
		cancel()
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		s.conn = conn
		s.connectedAt = s.opts.Clock.Now()
		s.log.Info().Msg("stream connected")
	}
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	if _, err := s.conn.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Sink) rotateIfExpired() {
	if s.conn == nil {
		return
	}
	if age := s.opts.Clock.Now().Sub(s.connectedAt); age > s.opts.MaxLifetime {
		s.log.Info().Dur("age", age).Msg("stream connection exceeded lifetime, closing")
		s.disconnect()
	}
}

func (s *Sink) disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close stream connection")
	}
	s.conn = nil
}
