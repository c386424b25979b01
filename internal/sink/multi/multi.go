// Package multi fans events out to several sinks.
package multi

import (
	"context"
	"errors"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/sink"
)

// Multi delivers every batch to each wrapped sink in turn. A failing sink
// does not stop delivery to the others. The delivered count is the
// smallest prefix every sink accepted, so a cursor never moves past an
// event one of the sinks is missing; sinks that did accept more will see
// those events again on the next scan.
type Multi struct {
	sinks []sink.Sink
}

func New(sinks ...sink.Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Send(ctx context.Context, event model.OutboundEvent) error {
	return sink.SendOne(ctx, m, event)
}

func (m *Multi) SendBatch(ctx context.Context, events []model.OutboundEvent, opts ...sink.SendOption) (int, error) {
	delivered := len(events)
	var errs []error
	for _, s := range m.sinks {
		n, err := s.SendBatch(ctx, events, opts...)
		if err != nil {
			errs = append(errs, err)
		}
		delivered = min(delivered, n)
	}
	return delivered, errors.Join(errs...)
}

// Close calls Close on every wrapped sink, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
