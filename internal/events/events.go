package events

import (
	"context"

	"github.com/au2001/graph-node/internal/domain"
)

// Sink receives execution phase transitions. Delivery is best effort: a sink
// error must never affect the execution it describes.
type Sink interface {
	Publish(ctx context.Context, event domain.ExecutionEvent) error
}

// NopSink discards events.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, domain.ExecutionEvent) error { return nil }

// Fanout forwards each event to every configured sink, attempting all of them
// even when one fails.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, event domain.ExecutionEvent) error {
	var firstErr error
	for _, sink := range f {
		if err := sink.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
