// Package reader tails one source: it pulls rows after the cursor, hands
// them to the sink and advances the cursor through what was delivered.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/normalize"
	"github.com/akave-ai/logreader/internal/registry"
	"github.com/akave-ai/logreader/internal/sink"
)

var (
	ErrMultiDayRange = errors.New("time range must fall within one UTC day")
	ErrInvertedRange = errors.New("time range start is after its end")
)

const (
	defaultBatchSize     = 1000
	defaultMaxIterations = 10
	defaultSlowCount     = 600
	defaultSlowElapsed   = 10 * time.Second
)

type Options struct {
	// BatchSize caps rows per query. Default: 1000.
	BatchSize int
	// MaxIterations caps full batches per invocation. Default: 10.
	MaxIterations int
	// SlowCount and SlowElapsed trigger the slow-path info log. Defaults: 600, 10s.
	SlowCount   int
	SlowElapsed time.Duration

	Clock  clock.Clock
	Logger zerolog.Logger
}

type Reader struct {
	sink       sink.Sink
	normalizer normalize.Normalizer
	opts       Options
	log        zerolog.Logger
}

func New(s sink.Sink, n normalize.Normalizer, opts Options) *Reader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.SlowCount <= 0 {
		opts.SlowCount = defaultSlowCount
	}
	if opts.SlowElapsed <= 0 {
		opts.SlowElapsed = defaultSlowElapsed
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Reader{
		sink:       s,
		normalizer: n,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "reader").Logger(),
	}
}

// ReadAndForward drains new rows of the cursor partition. When the UTC day
// had already moved past the cursor partition as the call began and the
// partition is exhausted, the cursor rolls to today and the new partition
// is drained in the same call. A day change observed only during the drain
// waits for the next call, which reads the old partition once more first.
// On error the count delivered so far is returned with it and the cursor
// stays on the last delivered row.
func (r *Reader) ReadAndForward(ctx context.Context, src *registry.Source) (int, error) {
	start := r.opts.Clock.Now()
	log := r.log.With().Str("account", src.Account).Str("table", src.Table).Logger()

	behind, err := src.Cursor().Behind(start)
	if err != nil {
		return 0, err
	}

	total, exhausted, err := r.drain(ctx, src, log)
	if err == nil && exhausted && behind {
		from := src.Cursor().PartitionKey
		to := model.PartitionFor(start)
		src.Roll(to)
		log.Info().Str("from", from).Str("to", to).Msg("partition rollover")

		var n int
		n, _, err = r.drain(ctx, src, log)
		total += n
	}

	elapsed := r.opts.Clock.Now().Sub(start)
	if total > r.opts.SlowCount || elapsed > r.opts.SlowElapsed {
		cur := src.Cursor()
		log.Info().
			Int("count", total).
			Dur("elapsed", elapsed).
			Str("partition_key", cur.PartitionKey).
			Str("row_key", cur.RowKey).
			Msg("slow source scan")
	}
	return total, err
}

// drain reads full batches until a short one or the iteration cap. It
// reports whether the partition was exhausted.
func (r *Reader) drain(ctx context.Context, src *registry.Source, log zerolog.Logger) (int, bool, error) {
	total := 0
	for i := 0; i < r.opts.MaxIterations; i++ {
		cur := src.Cursor()
		rows, err := src.Store.QueryRange(ctx, cur.PartitionKey, cur.RowKey, r.opts.BatchSize)
		if err != nil {
			return total, false, fmt.Errorf("query %s after %s: %w", cur.PartitionKey, cur.RowKey, err)
		}
		if len(rows) == 0 {
			return total, true, nil
		}

		events := r.normalizer.NormalizeAll(rows, src)
		delivered, sendErr := r.sink.SendBatch(ctx, events)
		for _, ev := range events[:clamp(delivered, len(events))] {
			src.Advance(ev.RowKey)
		}
		total += clamp(delivered, len(events))
		if sendErr != nil {
			return total, false, fmt.Errorf("send: %w", sendErr)
		}

		if len(rows) < r.opts.BatchSize {
			return total, true, nil
		}
	}
	log.Warn().Int("iterations", r.opts.MaxIterations).Int("batch_size", r.opts.BatchSize).
		Msg("iteration cap reached with full batches, remainder deferred to next tick")
	return total, false, nil
}

// Replay re-delivers the source's rows with storage timestamps in
// [from, to]. The range must lie within one UTC day. The live cursor is
// not touched and the first send failure aborts the replay.
func (r *Reader) Replay(ctx context.Context, src *registry.Source, from, to time.Time) (int, error) {
	from, to = from.UTC(), to.UTC()
	if from.After(to) {
		return 0, ErrInvertedRange
	}
	partition := model.PartitionFor(from)
	if partition != model.PartitionFor(to) {
		return 0, ErrMultiDayRange
	}

	rows, err := src.Store.QueryWindow(ctx, partition, from, to)
	if err != nil {
		return 0, fmt.Errorf("query window %s: %w", partition, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	delivered, err := r.sink.SendBatch(ctx, r.normalizer.NormalizeAll(rows, src), sink.StopOnFailure())
	r.log.Info().
		Str("account", src.Account).
		Str("table", src.Table).
		Time("from", from).
		Time("to", to).
		Int("rows", len(rows)).
		Int("delivered", delivered).
		Err(err).
		Msg("historical replay")
	if err != nil {
		return delivered, fmt.Errorf("send: %w", err)
	}
	return delivered, nil
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
