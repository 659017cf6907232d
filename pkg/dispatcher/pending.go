package dispatcher

import (
	"context"
	"sync"
)

// Pending is the eventual outcome of one invocation.
type Pending struct {
	// RequestID identifies the invocation in logs and events.
	RequestID string

	once   sync.Once
	done   chan struct{}
	result *ResultEnvelope
	err    error
}

func newPending(requestID string) *Pending {
	return &Pending{RequestID: requestID, done: make(chan struct{})}
}

// Done is closed once the invocation has completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the invocation completes or ctx ends. Returning on ctx
// does not stop the function.
func (p *Pending) Wait(ctx context.Context) (*ResultEnvelope, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) settle(result *ResultEnvelope, err error) {
	p.once.Do(func() {
		p.result, p.err = result, err
		close(p.done)
	})
}
