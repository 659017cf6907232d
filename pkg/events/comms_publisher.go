package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// InvokedSubject overrides the global invocation subject.
	InvokedSubject string
	// RoutesChangedSubject overrides the route change subject.
	RoutesChangedSubject string
}

// CommsPublisher publishes events to COMMS subjects.
type CommsPublisher struct {
	nc                   *comms.Conn
	invokedSubject       string
	routesChangedSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{
		nc:                   nc,
		invokedSubject:       commsutil.SubjectInvoked,
		routesChangedSubject: commsutil.SubjectRoutesChanged,
	}
	if opts != nil {
		if opts.InvokedSubject != "" {
			p.invokedSubject = opts.InvokedSubject
		}
		if opts.RoutesChangedSubject != "" {
			p.routesChangedSubject = opts.RoutesChangedSubject
		}
	}
	return p
}

// PublishInvoked publishes a FunctionInvokedEvent to both the granular
// and global invocation subjects.
func (p *CommsPublisher) PublishInvoked(_ context.Context, event *FunctionInvokedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granularSubject := commsutil.BuildInvokedSubject(event.App, event.Function)
	if err := p.nc.Publish(granularSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, granularSubject, err))
		return err
	}

	if err := p.nc.Publish(p.invokedSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.invokedSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - published invocation of %s.%s", commsPublisherLogPrefix, event.App, event.Function))
	return nil
}

// PublishRoutesChanged publishes a RoutesChangedEvent.
func (p *CommsPublisher) PublishRoutesChanged(_ context.Context, event *RoutesChangedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	if err := p.nc.Publish(p.routesChangedSubject, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsPublisherLogPrefix, p.routesChangedSubject, err)
	}
	// seed runs as a short-lived process
	if err := p.nc.Flush(); err != nil {
		return fmt.Errorf("%s - flush failed: %w", commsPublisherLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - published route change for %s", commsPublisherLogPrefix, event.App))
	return nil
}

// SubscribeRoutesChanged calls handler for every RoutesChangedEvent. Events
// that fail to decode are logged and skipped.
func SubscribeRoutesChanged(nc *comms.Conn, subject string, handler func(*RoutesChangedEvent)) (*comms.Subscription, error) {
	if subject == "" {
		subject = commsutil.SubjectRoutesChanged
	}
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event RoutesChangedEvent
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping malformed route change event: %v", commsPublisherLogPrefix, err))
			return
		}
		handler(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsPublisherLogPrefix, subject, err)
	}
	return sub, nil
}
