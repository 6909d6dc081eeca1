package ws

import (
	"testing"
	"time"
)

type chanSubscriber struct {
	ch chan []byte
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{ch: make(chan []byte, 8)}
}

func (s *chanSubscriber) Send(payload []byte) error {
	s.ch <- payload
	return nil
}

func (s *chanSubscriber) Close() {}

func (s *chanSubscriber) receive(t *testing.T) []byte {
	t.Helper()
	select {
	case payload := <-s.ch:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestHubDeliversToTopicAndWildcardSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	topical := newChanSubscriber()
	wildcard := newChanSubscriber()
	other := newChanSubscriber()
	hub.Register("exec-1", topical)
	hub.Register(TopicAll, wildcard)
	hub.Register("exec-2", other)

	hub.Broadcast("exec-1", []byte("phase"))

	if got := string(topical.receive(t)); got != "phase" {
		t.Fatalf("expected topic subscriber to receive payload, got %q", got)
	}
	if got := string(wildcard.receive(t)); got != "phase" {
		t.Fatalf("expected wildcard subscriber to receive payload, got %q", got)
	}
	select {
	case payload := <-other.ch:
		t.Fatalf("unexpected delivery to other topic: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()

	sub := newChanSubscriber()
	hub.Register("exec-1", sub)
	hub.Unregister("exec-1", sub)
	hub.Broadcast("exec-1", []byte("phase"))

	select {
	case payload := <-sub.ch:
		t.Fatalf("unexpected delivery after unregister: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}
