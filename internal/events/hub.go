package events

import (
	"context"
	"encoding/json"

	"github.com/au2001/graph-node/internal/domain"
	"github.com/au2001/graph-node/internal/ws"
)

// HubSink broadcasts execution events to connected streaming clients.
type HubSink struct {
	hub *ws.Hub
}

// NewHubSink wraps a streaming hub as an event sink.
func NewHubSink(hub *ws.Hub) HubSink {
	return HubSink{hub: hub}
}

// Publish implements Sink. Events are delivered on the execution's own topic;
// wildcard subscribers see every execution.
func (s HubSink) Publish(_ context.Context, event domain.ExecutionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.hub.Broadcast(event.ExecutionID, payload)
	return nil
}
