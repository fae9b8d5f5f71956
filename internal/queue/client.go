package queue

import "context"

// Publisher delivers document lifecycle events to a broker.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

var _ Publisher = Noop{}
