package batch

import (
	"context"
	"sync"
)

// Gate admits at most N concurrent holders.
type Gate struct {
	slots chan struct{}

	mu       sync.Mutex
	inFlight int
	observe  func(inFlight int)
}

// NewGate returns a gate of capacity n. observe, when set, is called with the
// current holder count after every admit and release.
func NewGate(n int, observe func(inFlight int)) (*Gate, error) {
	if n < 1 {
		return nil, ErrInvalidConcurrency
	}
	return &Gate{slots: make(chan struct{}, n), observe: observe}, nil
}

// Acquire blocks until a slot frees or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case g.slots <- struct{}{}:
		// select picks at random when both cases are ready
		if err := ctx.Err(); err != nil {
			<-g.slots
			return err
		}
		g.track(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.track(-1)
	<-g.slots
}

func (g *Gate) Cap() int { return cap(g.slots) }

func (g *Gate) track(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight += delta
	if g.observe != nil {
		g.observe(g.inFlight)
	}
}
