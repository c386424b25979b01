// Package aggregator POSTs events to a log-aggregation HTTP endpoint.
// Every event is wrapped in an envelope and groups of envelopes are sent as
// a JSON array. Failed requests are not retried here; the caller's cursor
// stays behind the first undelivered group and the next scan resends it.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

const (
	defaultBatchSize = 100
	defaultTimeout   = 10 * time.Second
	defaultSender    = "logreader"
)

// Envelope is the aggregator's per-event wrapper.
type Envelope struct {
	Topic    string              `json:"topic"`
	Sender   string              `json:"sender"`
	Level    string              `json:"level"`
	Document model.OutboundEvent `json:"document"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("aggregator: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("aggregator: HTTP %d: %s", e.StatusCode, e.Body)
}

type Option func(*Sink)

// WithTopic sets the envelope topic.
func WithTopic(topic string) Option {
	return func(s *Sink) { s.topic = topic }
}

// WithSender sets the envelope sender. Default: logreader.
func WithSender(sender string) Option {
	return func(s *Sink) { s.sender = sender }
}

// WithBatchSize sets how many envelopes go into one POST. Default: 100.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client.Timeout = d
		}
	}
}

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(s *Sink) { s.headers = h }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) { s.client = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Sink) { s.log = l }
}

// Sink is the aggregator delivery channel. It holds no connection state of
// its own, so concurrent sends are safe.
type Sink struct {
	client    *http.Client
	url       string
	topic     string
	sender    string
	headers   map[string]string
	batchSize int
	log       zerolog.Logger
}

func New(url string, opts ...Option) *Sink {
	s := &Sink{
		client:    &http.Client{Timeout: defaultTimeout},
		url:       url,
		sender:    defaultSender,
		batchSize: defaultBatchSize,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "aggregator_sink").Logger()
	return s
}

func (s *Sink) Send(ctx context.Context, event model.OutboundEvent) error {
	return sink.SendOne(ctx, s, event)
}

// SendBatch posts events in groups of batchSize and stops at the first
// failed group. The returned count covers the groups that were accepted.
func (s *Sink) SendBatch(ctx context.Context, events []model.OutboundEvent, _ ...sink.SendOption) (int, error) {
	delivered := 0
	for start := 0; start < len(events); start += s.batchSize {
		end := min(start+s.batchSize, len(events))
		if err := s.post(ctx, s.wrap(events[start:end])); err != nil {
			s.log.Warn().Err(err).Int("delivered", delivered).Int("pending", len(events)-delivered).Msg("aggregator post failed")
			return delivered, err
		}
		delivered = end
	}
	return delivered, nil
}

func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Sink) wrap(events []model.OutboundEvent) []Envelope {
	out := make([]Envelope, len(events))
	for i, ev := range events {
		out[i] = Envelope{Topic: s.topic, Sender: s.sender, Level: ev.Level, Document: ev}
	}
	return out
}

func (s *Sink) post(ctx context.Context, envelopes []Envelope) error {
	body, err := json.Marshal(envelopes)
	if err != nil {
		return fmt.Errorf("aggregator: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
