// Package archive writes event batches as gzip-compressed NDJSON objects
// to an S3-compatible bucket.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

const (
	defaultPrefix   = "logs"
	contentType     = "application/x-ndjson"
	contentEncoding = "gzip"
)

// Uploader is implemented by *storage.ObjectStore.
type Uploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType, contentEncoding string) error
}

// Sink uploads one object per run of consecutive events from the same source.
type Sink struct {
	store  Uploader
	prefix string
	clock  clock.Clock
	log    zerolog.Logger
}

func New(store Uploader, prefix string, clk clock.Clock, logger zerolog.Logger) *Sink {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sink{
		store:  store,
		prefix: prefix,
		clock:  clk,
		log:    logger.With().Str("component", "archive_sink").Logger(),
	}
}

func (s *Sink) Send(ctx context.Context, event model.OutboundEvent) error {
	return sink.SendOne(ctx, s, event)
}

func (s *Sink) SendBatch(ctx context.Context, events []model.OutboundEvent, _ ...sink.SendOption) (int, error) {
	delivered := 0
	for start := 0; start < len(events); {
		end := start + 1
		for end < len(events) && sameSource(events[start], events[end]) {
			end++
		}
		run := events[start:end]
		data, err := Encode(run)
		if err != nil {
			return delivered, err
		}
		key := s.Key(run[0].AccountName, run[0].Table, uuid.NewString())
		if err := s.store.PutObject(ctx, key, data, contentType, contentEncoding); err != nil {
			s.log.Warn().Err(err).Str("key", key).Int("delivered", delivered).Msg("archive upload failed")
			return delivered, fmt.Errorf("archive: %w", err)
		}
		s.log.Debug().Str("key", key).Int("count", len(run)).Msg("archived batch")
		delivered = end
		start = end
	}
	return delivered, nil
}

func (s *Sink) Close() error { return nil }

// Key returns logs/<account>/<table>/yyyy/mm/dd/<id>.ndjson.gz under the
// configured prefix, dated by the current UTC day.
func (s *Sink) Key(account, table, id string) string {
	if account == "" {
		account = "default"
	}
	day := s.clock.Now().UTC().Format("2006/01/02")
	return path.Join(s.prefix, account, table, day, id+".ndjson.gz")
}

// Encode gzips events as newline-delimited JSON.
func Encode(events []model.OutboundEvent) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for _, ev := range events {
		line, err := sink.Line(ev)
		if err != nil {
			return nil, fmt.Errorf("archive: encode event %s: %w", ev.RowKey, err)
		}
		if _, err := zw.Write(line); err != nil {
			return nil, fmt.Errorf("archive: gzip: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func sameSource(a, b model.OutboundEvent) bool {
	return a.AccountName == b.AccountName && a.Table == b.Table
}
