// package feed fans request change events out to change-feed subscribers.
//
// Stores without a native change feed publish here after every write. [Local]
// keeps events inside the process; [Redis] shares them between processes that
// point at the same database.
package feed

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

// Buffer is the per-subscriber event buffer.
const Buffer = 64

// Broker publishes change events and opens subscriptions to them.
type Broker interface {
	Publish(ctx context.Context, ev requests.ChangeEvent) error
	Subscribe(ctx context.Context) (requests.Channel, error)
	Close() error
}

// Local is an in-process [Broker]. Slow subscribers miss events rather than
// block publishers.
type Local struct {
	logger *log.Logger

	mu     sync.Mutex
	subs   map[*channel]struct{}
	closed bool
}

func NewLocal(logger *log.Logger) *Local {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Local{
		logger: shared.WithLogger(logger, "component", "feed"),
		subs:   make(map[*channel]struct{}),
	}
}

func (l *Local) Publish(ctx context.Context, ev requests.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		if !ch.offer(ev) {
			l.logger.Warn("dropping change event for slow subscriber", "type", ev.Type, "id", ev.ID())
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (requests.Channel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := newChannel(func(c *channel) {
		l.mu.Lock()
		delete(l.subs, c)
		l.mu.Unlock()
	})
	if l.closed {
		ch.shutdown()
		return ch, nil
	}
	l.subs[ch] = struct{}{}
	return ch, nil
}

// Close ends every open subscription.
func (l *Local) Close() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = make(map[*channel]struct{})
	l.closed = true
	l.mu.Unlock()

	for ch := range subs {
		ch.shutdown()
	}
	return nil
}

// Subscribers reports how many subscriptions are open.
func (l *Local) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// channel is a buffered [requests.Channel] that is closed exactly once.
type channel struct {
	events  chan requests.ChangeEvent
	release func(*channel)

	mu     sync.Mutex
	closed bool
}

func newChannel(release func(*channel)) *channel {
	return &channel{events: make(chan requests.ChangeEvent, Buffer), release: release}
}

func (c *channel) Events() <-chan requests.ChangeEvent { return c.events }

// offer delivers ev without blocking and reports whether it was buffered.
func (c *channel) offer(ev requests.ChangeEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *channel) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

func (c *channel) Close() error {
	if c.release != nil {
		c.release(c)
	}
	c.shutdown()
	return nil
}
