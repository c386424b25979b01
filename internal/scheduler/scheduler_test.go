package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/registry"
)

type scanFunc func(ctx context.Context, src *registry.Source) (int, error)

func (f scanFunc) ReadAndForward(ctx context.Context, src *registry.Source) (int, error) {
	return f(ctx, src)
}

type countingDiscoverer struct {
	calls atomic.Int32
	reg   *registry.Registry
	add   []string
}

func (d *countingDiscoverer) Discover(context.Context, []config.Account) int {
	d.calls.Add(1)
	for _, table := range d.add {
		d.reg.Add(newSource(table))
	}
	return len(d.add)
}

func newSource(table string) *registry.Source {
	return registry.NewSource("acct", table, "memory://acct", model.ClassificationDefault, nil,
		model.Cursor{PartitionKey: "2024-03-05", RowKey: model.PartitionStart})
}

func registryWith(tables ...string) *registry.Registry {
	reg := registry.New()
	for _, t := range tables {
		reg.Add(newSource(t))
	}
	return reg
}

func opts(concurrency int) Options {
	return Options{Concurrency: concurrency, Logger: zerolog.Nop()}
}

func TestTick_IsolatesFailingSource(t *testing.T) {
	reg := registryWith("Broken", "Healthy", "Panics")
	scanner := scanFunc(func(_ context.Context, src *registry.Source) (int, error) {
		switch src.Table {
		case "Broken":
			return 2, errors.New("throttled")
		case "Panics":
			panic("nil table")
		}
		return 3, nil
	})
	s := New(reg, scanner, nil, opts(2))

	stats, ok := s.Tick(context.Background())
	if !ok {
		t.Fatal("tick should run")
	}
	if stats.Sources != 3 || stats.Events != 3 || stats.Failures != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.ID == "" {
		t.Error("tick id should be set")
	}
}

func TestTick_RespectsConcurrencyLimit(t *testing.T) {
	tables := make([]string, 30)
	for i := range tables {
		tables[i] = fmt.Sprintf("Log%02d", i)
	}
	var active, peak atomic.Int32
	scanner := scanFunc(func(context.Context, *registry.Source) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return 1, nil
	})
	s := New(registryWith(tables...), scanner, nil, opts(4))

	stats, _ := s.Tick(context.Background())
	if stats.Events != 30 {
		t.Fatalf("events = %d", stats.Events)
	}
	if p := peak.Load(); p > 4 {
		t.Fatalf("peak concurrency = %d, limit 4", p)
	}
}

func TestTick_DropsOverlappingTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	scanner := scanFunc(func(context.Context, *registry.Source) (int, error) {
		close(entered)
		<-release
		return 1, nil
	})
	s := New(registryWith("AppLog"), scanner, nil, opts(1))

	done := make(chan TickStats)
	go func() {
		stats, _ := s.Tick(context.Background())
		done <- stats
	}()
	<-entered

	if _, ok := s.Tick(context.Background()); ok {
		t.Fatal("overlapping tick should be dropped")
	}
	close(release)
	if stats := <-done; stats.Events != 1 {
		t.Fatalf("first tick stats = %+v", stats)
	}
	if _, ok := s.Tick(context.Background()); !ok {
		t.Fatal("slot should be released after the tick")
	}
}

func TestTick_DiscoveryRunsOnceBeforeFirstScan(t *testing.T) {
	reg := registry.New()
	d := &countingDiscoverer{reg: reg, add: []string{"AppLog", "WebLog"}}
	var scanned atomic.Int32
	scanner := scanFunc(func(context.Context, *registry.Source) (int, error) {
		scanned.Add(1)
		return 0, nil
	})
	s := New(reg, scanner, d, opts(2))

	stats, _ := s.Tick(context.Background())
	if stats.Sources != 2 || scanned.Load() != 2 {
		t.Fatalf("first tick should scan discovered sources, stats = %+v", stats)
	}
	s.Tick(context.Background())
	if d.calls.Load() != 1 {
		t.Fatalf("discovery calls = %d, want 1", d.calls.Load())
	}
}

func TestTick_DiscoveryFindingNothingIsNotRetried(t *testing.T) {
	reg := registry.New()
	d := &countingDiscoverer{reg: reg}
	s := New(reg, scanFunc(func(context.Context, *registry.Source) (int, error) { return 0, nil }), d, opts(1))
	s.Tick(context.Background())
	s.Tick(context.Background())
	if d.calls.Load() != 1 {
		t.Fatalf("discovery calls = %d, want 1", d.calls.Load())
	}
}

func TestHealth(t *testing.T) {
	fc := clock.NewFake(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC))
	o := opts(1)
	o.Clock = fc
	o.HealthStaleAfter = 10 * time.Minute
	s := New(registryWith("AppLog"), scanFunc(func(context.Context, *registry.Source) (int, error) { return 0, nil }), nil, o)

	if err := s.Health(); err != nil {
		t.Fatalf("fresh scheduler unhealthy: %v", err)
	}
	if _, ok := s.LastTick(); ok {
		t.Fatal("no tick has completed yet")
	}
	fc.Advance(11 * time.Minute)
	if err := s.Health(); err == nil {
		t.Fatal("expected stale health error")
	}
	s.Tick(context.Background())
	if err := s.Health(); err != nil {
		t.Fatalf("healthy after tick: %v", err)
	}
	if _, ok := s.LastTick(); !ok {
		t.Fatal("last tick should be recorded")
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	var mu sync.Mutex
	scans := 0
	scanner := scanFunc(func(context.Context, *registry.Source) (int, error) {
		mu.Lock()
		scans++
		mu.Unlock()
		return 1, nil
	})
	o := opts(1)
	o.Interval = 5 * time.Millisecond
	s := New(registryWith("AppLog"), scanner, nil, o)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if scans < 2 {
		t.Fatalf("scans = %d, want several", scans)
	}
}
