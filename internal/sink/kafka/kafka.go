// Package kafka publishes events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

const (
	defaultBatchTimeout = 100 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

// Config for the Kafka sink.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per event, keyed by account and table so a
// source's events stay ordered within their partition.
type Sink struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// New builds a synchronous writer that waits for the partition leader's ack.
func New(cfg Config, logger zerolog.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka sink: brokers and topic are required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	log := logger.With().Str("component", "kafka_sink").Str("topic", cfg.Topic).Logger()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf(msg, args...)
		}),
	}
	return newWithWriter(w, cfg.Topic, log), nil
}

func newWithWriter(w messageWriter, topic string, log zerolog.Logger) *Sink {
	return &Sink{writer: w, topic: topic, log: log}
}

func (s *Sink) Send(ctx context.Context, event model.OutboundEvent) error {
	return sink.SendOne(ctx, s, event)
}

func (s *Sink) SendBatch(ctx context.Context, events []model.OutboundEvent, _ ...sink.SendOption) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	msgs, err := toMessages(events)
	if err != nil {
		return 0, err
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		n := deliveredPrefix(err, len(msgs))
		s.log.Warn().Err(err).Int("delivered", n).Int("count", len(msgs)).Msg("kafka write failed")
		return n, fmt.Errorf("kafka sink: %w", err)
	}
	return len(msgs), nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

func toMessages(events []model.OutboundEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		value, err := sink.Line(ev)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: encode event %s: %w", ev.RowKey, err)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(ev.AccountName + "/" + ev.Table),
			Value: value[:len(value)-1],
		}
	}
	return msgs, nil
}

// deliveredPrefix counts the leading messages the broker accepted. Any
// error other than kafka.WriteErrors means nothing is known to be written.
func deliveredPrefix(err error, total int) int {
	var werrs kafka.WriteErrors
	if !errors.As(err, &werrs) || len(werrs) != total {
		return 0
	}
	for i, e := range werrs {
		if e != nil {
			return i
		}
	}
	return total
}
