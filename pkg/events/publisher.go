package events

import "context"

// EventPublisher publishes invocation and route change events.
type EventPublisher interface {
	PublishInvoked(ctx context.Context, event *FunctionInvokedEvent) error
	PublishRoutesChanged(ctx context.Context, event *RoutesChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishInvoked is a no-op.
func (p *NoOpPublisher) PublishInvoked(_ context.Context, _ *FunctionInvokedEvent) error {
	return nil
}

// PublishRoutesChanged is a no-op.
func (p *NoOpPublisher) PublishRoutesChanged(_ context.Context, _ *RoutesChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls callback functions (for testing).
// A nil callback drops the event.
type CallbackPublisher struct {
	OnInvoked       func(ctx context.Context, event *FunctionInvokedEvent) error
	OnRoutesChanged func(ctx context.Context, event *RoutesChangedEvent) error
}

// PublishInvoked calls OnInvoked.
func (p *CallbackPublisher) PublishInvoked(ctx context.Context, event *FunctionInvokedEvent) error {
	if p.OnInvoked == nil {
		return nil
	}
	return p.OnInvoked(ctx, event)
}

// PublishRoutesChanged calls OnRoutesChanged.
func (p *CallbackPublisher) PublishRoutesChanged(ctx context.Context, event *RoutesChangedEvent) error {
	if p.OnRoutesChanged == nil {
		return nil
	}
	return p.OnRoutesChanged(ctx, event)
}
