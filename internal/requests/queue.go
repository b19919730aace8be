// package requests keeps a local, live copy of the song request queue.
//
// A [Queue] loads the full list from the backing store, submits new requests,
// applies DJ status changes optimistically and folds change-feed events into
// its cache. With no store configured it runs in demo mode: reads are empty,
// submissions are simulated and nothing is written.
package requests

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/notify"
	"github.com/desertthunder/melodyflow/internal/shared"
)

// DemoDelay is how long a simulated submission takes.
const DemoDelay = 500 * time.Millisecond

var (
	ErrAlreadySubscribed = errors.New("queue already has an open change feed")
	ErrFeedClosed        = errors.New("change feed closed")
)

// Handlers are called after an event has been applied to the cache.
// Any of them may be nil.
type Handlers struct {
	OnInsert func(models.SongRequest)
	OnUpdate func(models.SongRequest)
	OnDelete func(models.RequestID)
}

// Queue is the client-side request cache. Safe for concurrent use.
type Queue struct {
	provider  Provider
	bus       *notify.Bus
	clock     clockwork.Clock
	logger    *log.Logger
	demoDelay time.Duration

	mu    sync.RWMutex
	cache []models.SongRequest
	sub   *Subscription

	writes sync.WaitGroup
}

// Option configures a [Queue].
type Option func(*Queue)

func WithClock(c clockwork.Clock) Option   { return func(q *Queue) { q.clock = c } }
func WithLogger(l *log.Logger) Option      { return func(q *Queue) { q.logger = l } }
func WithNotifier(b *notify.Bus) Option    { return func(q *Queue) { q.bus = b } }
func WithDemoDelay(d time.Duration) Option { return func(q *Queue) { q.demoDelay = d } }

func NewQueue(p Provider, opts ...Option) *Queue {
	q := &Queue{provider: p, clock: clockwork.NewRealClock(), demoDelay: DemoDelay}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = shared.NewLogger(nil)
	}
	q.logger = shared.WithLogger(q.logger, "component", "requests")
	return q
}

// Configured reports whether a backing store is available.
func (q *Queue) Configured() bool {
	return q.provider.Store() != nil
}

// Snapshot returns a copy of the cache, in display order.
func (q *Queue) Snapshot() []models.SongRequest {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.cache)
}

// LoadAll replaces the cache with the store's rows (newest first).
// Without a store the cache is emptied and no error is returned.
func (q *Queue) LoadAll(ctx context.Context) ([]models.SongRequest, error) {
	store := q.provider.Store()
	if store == nil {
		q.replace(nil)
		return []models.SongRequest{}, nil
	}

	rows, err := store.List(ctx)
	if err != nil {
		q.logger.Error("failed to load requests", "error", err)
		return nil, err
	}
	q.replace(rows)
	return slices.Clone(rows), nil
}

// Submit records a PENDING request for track by user.
//
// Without a store the call waits [DemoDelay] and returns a synthetic record
// with a "demo-" id. Store errors are returned unchanged.
func (q *Queue) Submit(ctx context.Context, track models.TrackRef, user *models.User) (*models.SongRequest, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: user not logged in", shared.ErrNotAuthenticated)
	}

	store := q.provider.Store()
	if store == nil {
		select {
		case <-q.clock.After(q.demoDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		now := q.clock.Now()
		req := models.NewRequest(track, *user, now).Request(models.RequestID(fmt.Sprintf("demo-%d", now.UnixMilli())))
		return &req, nil
	}

	payload := models.NewRequest(track, *user, q.clock.Now())
	row, err := store.Insert(ctx, payload)
	if err != nil {
		q.logger.Error("failed to submit request", "track_id", track.ID, "error", err)
		return nil, err
	}
	return row, nil
}

// SetStatus marks a request PLAYED or REJECTED.
//
// The cache is updated before SetStatus returns; the store write happens in
// the background. A failed write is logged and published as an error toast,
// and the cache keeps the new status. Use [Queue.Wait] to wait for writes.
func (q *Queue) SetStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: status must be PLAYED or REJECTED, got %q", shared.ErrInvalidArgument, status)
	}

	q.mu.Lock()
	idx := q.indexLocked(id)
	if idx >= 0 {
		current := q.cache[idx].Status
		if !current.CanTransition(status) {
			q.mu.Unlock()
			return fmt.Errorf("%w: request %s is already %s", shared.ErrInvalidTransition, id, current)
		}
		q.cache[idx].Status = status
	}
	q.mu.Unlock()

	store := q.provider.Store()
	if store == nil {
		return nil
	}

	q.writes.Add(1)
	go func() {
		defer q.writes.Done()
		if _, err := store.UpdateStatus(context.WithoutCancel(ctx), id, status); err != nil {
			// TODO: restore the previous status when the write fails.
			q.logger.Error("failed to update request status", "id", id, "status", status, "error", err)
			if q.bus != nil {
				q.bus.Error(fmt.Sprintf("Could not mark request as %s", status))
			}
		}
	}()
	return nil
}

// Wait blocks until all background status writes have finished.
func (q *Queue) Wait() {
	q.writes.Wait()
}

// Subscribe opens the change feed and routes its events into the cache.
//
// A Queue holds at most one open feed. Without a store the returned
// subscription is inert. The caller must Close the subscription.
func (q *Queue) Subscribe(ctx context.Context, h Handlers) (*Subscription, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sub != nil {
		return nil, ErrAlreadySubscribed
	}

	s := &Subscription{q: q, done: make(chan struct{})}
	store := q.provider.Store()
	if store == nil {
		q.sub = s
		return s, nil
	}

	ch, err := store.Subscribe(ctx)
	if err != nil {
		q.logger.Error("failed to open change feed", "error", err)
		return nil, err
	}
	s.ch = ch
	q.sub = s
	go s.route(h)
	return s, nil
}

// Watch subscribes and blocks until ctx is done or the feed ends, always
// releasing the subscription. A feed that ends before ctx returns [ErrFeedClosed].
func (q *Queue) Watch(ctx context.Context, h Handlers) error {
	sub, err := q.Subscribe(ctx, h)
	if err != nil {
		return err
	}
	defer sub.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-sub.Done():
		return ErrFeedClosed
	}
}

// apply folds one event into the cache and then calls the matching handler.
func (q *Queue) apply(ev ChangeEvent, h Handlers) {
	switch ev.Type {
	case EventInsert:
		if ev.New == nil {
			return
		}
		row := *ev.New
		q.mu.Lock()
		if idx := q.indexLocked(row.ID); idx >= 0 {
			q.cache[idx] = row
		} else {
			q.cache = append([]models.SongRequest{row}, q.cache...)
		}
		q.mu.Unlock()

		if q.bus != nil {
			q.bus.Info(fmt.Sprintf("New request: %s", row.Title))
		}
		if h.OnInsert != nil {
			h.OnInsert(row)
		}

	case EventUpdate:
		if ev.New == nil {
			return
		}
		row := *ev.New
		q.mu.Lock()
		if idx := q.indexLocked(row.ID); idx >= 0 {
			q.cache[idx] = row
		}
		q.mu.Unlock()

		if h.OnUpdate != nil {
			h.OnUpdate(row)
		}

	case EventDelete:
		id := ev.ID()
		if id == "" {
			return
		}
		q.mu.Lock()
		if idx := q.indexLocked(id); idx >= 0 {
			q.cache = slices.Delete(q.cache, idx, idx+1)
		}
		q.mu.Unlock()

		if h.OnDelete != nil {
			h.OnDelete(id)
		}

	default:
		q.logger.Warn("ignoring unknown change event", "type", ev.Type)
	}
}

func (q *Queue) replace(rows []models.SongRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cache = slices.Clone(rows)
}

func (q *Queue) indexLocked(id models.RequestID) int {
	return slices.IndexFunc(q.cache, func(r models.SongRequest) bool { return r.ID == id })
}

func (q *Queue) release(s *Subscription) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sub == s {
		q.sub = nil
	}
}

// Subscription is an open change feed owned by a [Queue].
type Subscription struct {
	q    *Queue
	ch   Channel
	done chan struct{}
	once sync.Once
	err  error
}

// Done is closed when the feed stops delivering events.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the feed and waits for in-flight events to be applied.
// Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.ch == nil {
			close(s.done)
		} else {
			s.err = s.ch.Close()
			<-s.done
		}
		s.q.release(s)
	})
	return s.err
}

func (s *Subscription) route(h Handlers) {
	defer close(s.done)
	for ev := range s.ch.Events() {
		s.q.apply(ev, h)
	}
}
