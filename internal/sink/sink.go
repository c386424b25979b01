// Package sink defines the delivery channel that normalized events are
// handed to. Implementations live in subpackages and are selected at
// construction time through the sink factory registry.
package sink

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/akave-ai/logreader/internal/model"
)

// ErrClosed is returned by sends on a closed sink.
var ErrClosed = errors.New("sink: closed")

// Sink delivers events downstream.
type Sink interface {
	// Send delivers one event.
	Send(ctx context.Context, event model.OutboundEvent) error

	// SendBatch delivers events in order and returns how many leading
	// events were durably accepted. On error, events[delivered:] were not.
	SendBatch(ctx context.Context, events []model.OutboundEvent, opts ...SendOption) (delivered int, err error)

	Close() error
}

// SendOptions tune a single SendBatch call.
type SendOptions struct {
	// StopOnFailure makes sinks that retry internally give up after the
	// first failed attempt.
	StopOnFailure bool
}

type SendOption func(*SendOptions)

// StopOnFailure is used by best-effort callers such as historical replays.
func StopOnFailure() SendOption {
	return func(o *SendOptions) { o.StopOnFailure = true }
}

// Apply folds opts into a SendOptions value.
func Apply(opts []SendOption) SendOptions {
	var o SendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SendOne implements Send in terms of SendBatch.
func SendOne(ctx context.Context, s Sink, event model.OutboundEvent) error {
	_, err := s.SendBatch(ctx, []model.OutboundEvent{event})
	return err
}

// Line encodes an event as one JSON document terminated by a newline.
func Line(event model.OutboundEvent) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
