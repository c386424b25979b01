// Package scheduler drives periodic scans over every registered source.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/logger"
	"github.com/akave-ai/logreader/internal/registry"
)

const (
	defaultInterval    = time.Second
	defaultConcurrency = 8
	defaultStaleAfter  = 10 * time.Minute
)

// Scanner reads one source and forwards its new events.
type Scanner interface {
	ReadAndForward(ctx context.Context, src *registry.Source) (int, error)
}

// Discoverer populates the registry.
type Discoverer interface {
	Discover(ctx context.Context, accounts []config.Account) int
}

type Options struct {
	Interval         time.Duration
	Concurrency      int
	HealthStaleAfter time.Duration
	Accounts         []config.Account

	Clock    clock.Clock
	Logger   zerolog.Logger
	NewRelic *newrelic.Application
}

// TickStats summarizes one completed tick.
type TickStats struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Sources  int           `json:"sources"`
	Events   int           `json:"events"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
}

type Scheduler struct {
	registry   *registry.Registry
	scanner    Scanner
	discoverer Discoverer
	opts       Options
	log        zerolog.Logger

	// slot holds one token; a tick runs only while it owns the token.
	slot     chan struct{}
	discover sync.Once
	sem      *semaphore.Weighted

	mu        sync.RWMutex
	created   time.Time
	last      TickStats
	completed time.Time
}

func New(reg *registry.Registry, scanner Scanner, discoverer Discoverer, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.HealthStaleAfter <= 0 {
		opts.HealthStaleAfter = defaultStaleAfter
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s := &Scheduler{
		registry:   reg,
		scanner:    scanner,
		discoverer: discoverer,
		opts:       opts,
		log:        opts.Logger.With().Str("component", "scheduler").Logger(),
		slot:       make(chan struct{}, 1),
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		created:    opts.Clock.Now(),
	}
	s.slot <- struct{}{}
	return s
}

// Run fires a tick every interval until ctx is done, then waits for the
// running tick to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.opts.Interval).Int("concurrency", s.opts.Concurrency).Msg("scheduler started")

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Tick runs one scan over all sources. It returns false without doing
// anything if another tick still holds the slot. The first tick runs
// discovery to completion before scanning.
func (s *Scheduler) Tick(ctx context.Context) (TickStats, bool) {
	select {
	case <-s.slot:
	default:
		s.log.Debug().Msg("previous tick still running, dropping tick")
		return TickStats{}, false
	}
	defer func() { s.slot <- struct{}{} }()

	stats := TickStats{ID: uuid.NewString(), Started: s.opts.Clock.Now()}
	log := s.log.With().Str("tick_id", stats.ID).Logger()

	if app := s.opts.NewRelic; app != nil {
		txn := app.StartTransaction("scan-tick")
		txn.AddAttribute("tick_id", stats.ID)
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
		log = logger.WithTraceContext(log, txn)
	}

	s.discover.Do(func() {
		if s.discoverer != nil {
			s.discoverer.Discover(ctx, s.opts.Accounts)
		}
	})

	sources := s.registry.Sources()
	stats.Sources = len(sources)

	var events, failures atomic.Int64
	var wg sync.WaitGroup
	for _, src := range sources {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("tick cancelled before all sources were scanned")
			break
		}
		wg.Add(1)
		go func(src *registry.Source) {
			defer wg.Done()
			defer s.sem.Release(1)
			n, err := s.scan(ctx, src)
			if err != nil {
				failures.Add(1)
				log.Error().Err(err).
					Str("account", src.Account).
					Str("table", src.Table).
					Int("delivered", n).
					Msg("source scan failed")
				return
			}
			events.Add(int64(n))
		}(src)
	}
	wg.Wait()

	stats.Events = int(events.Load())
	stats.Failures = int(failures.Load())
	stats.Duration = s.opts.Clock.Now().Sub(stats.Started)

	s.mu.Lock()
	s.last = stats
	s.completed = s.opts.Clock.Now()
	s.mu.Unlock()

	ev := log.Debug()
	if stats.Events > 0 || stats.Failures > 0 {
		ev = log.Info()
	}
	ev.Int("sources", stats.Sources).
		Int("events", stats.Events).
		Int("failures", stats.Failures).
		Dur("elapsed", stats.Duration).
		Msg("tick finished")
	return stats, true
}

// scan reports a reader panic as that source's error.
func (s *Scheduler) scan(ctx context.Context, src *registry.Source) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.scanner.ReadAndForward(ctx, src)
}

// LastTick returns the stats of the most recent completed tick.
func (s *Scheduler) LastTick() (TickStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, !s.completed.IsZero()
}

// Health returns an error when no tick has completed within the staleness
// window, counted from construction until the first tick completes.
func (s *Scheduler) Health() error {
	s.mu.RLock()
	since := s.completed
	if since.IsZero() {
		since = s.created
	}
	s.mu.RUnlock()

	if age := s.opts.Clock.Now().Sub(since); age > s.opts.HealthStaleAfter {
		return fmt.Errorf("no scan completed in %s", age.Truncate(time.Second))
	}
	return nil
}
