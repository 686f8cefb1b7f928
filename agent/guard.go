package agent

import (
	"context"
	"errors"
	"sync"
)

var ErrTerminated = errors.New("agent terminated")

// Guard extends the lifetime of the agent while events are being handled.
// The host must not tear the agent down (e.g. close its storage) before Close returns.
type Guard struct {
	mutex  sync.Mutex
	active int
	closed bool
	idle   chan struct{}
}

func NewGuard() *Guard {
	return &Guard{}
}

// Extend registers an outstanding event.
// The returned release func must be called once the event's work has completed.
func (g *Guard) Extend() (release func(), err error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.closed {
		return nil, ErrTerminated
	}
	g.active++
	var once sync.Once
	return func() {
		once.Do(g.release)
	}, nil
}

func (g *Guard) release() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.active--
	if g.active == 0 && g.idle != nil {
		close(g.idle)
		g.idle = nil
	}
}

// Outstanding returns the number of events currently extending the lifetime.
func (g *Guard) Outstanding() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.active
}

// Close stops accepting events and waits for outstanding ones to complete, or for ctx to end.
func (g *Guard) Close(ctx context.Context) error {
	g.mutex.Lock()
	g.closed = true
	if g.active == 0 {
		g.mutex.Unlock()
		return nil
	}
	if g.idle == nil {
		g.idle = make(chan struct{})
	}
	idle := g.idle
	g.mutex.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
