// package notify is the toast channel shared by the CLI and the DJ console.
//
// Any component may publish; views subscribe for the lifetime of a screen and
// must Close their subscription when done. Toasts dismiss themselves after
// [DefaultTTL].
package notify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 4 * time.Second

// Kind classifies a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Toast is a transient notification.
type Toast struct {
	ID        string
	Message   string
	Kind      Kind
	CreatedAt time.Time
}

// Bus holds the active toasts and fans snapshots out to subscribers.
type Bus struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu     sync.Mutex
	toasts []Toast
	timers map[string]clockwork.Timer
	subs   map[*Subscription]struct{}
}

// Option configures a [Bus].
type Option func(*Bus)

func WithClock(c clockwork.Clock) Option { return func(b *Bus) { b.clock = c } }
func WithTTL(d time.Duration) Option     { return func(b *Bus) { b.ttl = d } }

func NewBus(opts ...Option) *Bus {
	b := &Bus{
		clock:  clockwork.NewRealClock(),
		ttl:    DefaultTTL,
		timers: make(map[string]clockwork.Timer),
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Show publishes a toast and returns its id.
func (b *Bus) Show(message string, kind Kind) string {
	id := shared.GenerateID()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.toasts = append(b.toasts, Toast{ID: id, Message: message, Kind: kind, CreatedAt: b.clock.Now()})
	b.timers[id] = b.clock.AfterFunc(b.ttl, func() { b.Dismiss(id) })
	b.broadcastLocked()
	return id
}

func (b *Bus) Success(message string) string { return b.Show(message, KindSuccess) }
func (b *Bus) Error(message string) string   { return b.Show(message, KindError) }
func (b *Bus) Info(message string) string    { return b.Show(message, KindInfo) }

// Dismiss removes a toast. Unknown ids are ignored.
func (b *Bus) Dismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
	for i, t := range b.toasts {
		if t.ID == id {
			b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)
			b.broadcastLocked()
			return
		}
	}
}

// Active returns the visible toasts, oldest first.
func (b *Bus) Active() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Subscribe registers for snapshots of the active toasts.
// The current snapshot is delivered immediately.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan []Toast, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s] = struct{}{}
	s.ch <- b.snapshotLocked()
	return s
}

func (b *Bus) snapshotLocked() []Toast {
	out := make([]Toast, len(b.toasts))
	copy(out, b.toasts)
	return out
}

// broadcastLocked replaces any undelivered snapshot so publishers never block.
func (b *Bus) broadcastLocked() {
	snap := b.snapshotLocked()
	for s := range b.subs {
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snap
	}
}

// Subscription receives toast snapshots until closed.
type Subscription struct {
	bus  *Bus
	ch   chan []Toast
	once sync.Once
}

// Updates delivers the latest snapshot. Intermediate snapshots may be skipped.
func (s *Subscription) Updates() <-chan []Toast { return s.ch }

// Close unregisters the subscription and closes its channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
