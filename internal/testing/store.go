package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
)

// FakeStore is an in-memory [requests.Store] that records calls.
//
// Set the *Err fields to make the matching call fail. When Gate is non-nil,
// UpdateStatus blocks until it is closed or receives a value.
type FakeStore struct {
	mu sync.Mutex

	Rows    []models.SongRequest
	Inserts []models.NewSongRequest
	Updates []StatusUpdate

	ListErr      error
	InsertErr    error
	UpdateErr    error
	SubscribeErr error

	Gate chan struct{}

	channels []*FakeChannel
	nextID   int
	closed   bool
}

// StatusUpdate is one recorded UpdateStatus call.
type StatusUpdate struct {
	ID     models.RequestID
	Status models.RequestStatus
}

func NewFakeStore(rows ...models.SongRequest) *FakeStore {
	return &FakeStore{Rows: rows}
}

func (s *FakeStore) List(ctx context.Context) ([]models.SongRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return slices.Clone(s.Rows), nil
}

func (s *FakeStore) Insert(ctx context.Context, req models.NewSongRequest) (*models.SongRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts = append(s.Inserts, req)
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	s.nextID++
	row := req.Request(models.RequestID(fmt.Sprintf("req-%d", s.nextID)))
	s.Rows = append([]models.SongRequest{row}, s.Rows...)
	return &row, nil
}

func (s *FakeStore) UpdateStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) (*models.SongRequest, error) {
	if s.Gate != nil {
		<-s.Gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates = append(s.Updates, StatusUpdate{ID: id, Status: status})
	if s.UpdateErr != nil {
		return nil, s.UpdateErr
	}
	for i := range s.Rows {
		if s.Rows[i].ID == id {
			s.Rows[i].Status = status
			row := s.Rows[i]
			return &row, nil
		}
	}
	return nil, fmt.Errorf("request %s not found", id)
}

func (s *FakeStore) Subscribe(ctx context.Context) (requests.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubscribeErr != nil {
		return nil, s.SubscribeErr
	}
	ch := NewFakeChannel()
	s.channels = append(s.channels, ch)
	return ch, nil
}

func (s *FakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit sends ev to every open channel.
func (s *FakeStore) Emit(ev requests.ChangeEvent) {
	s.mu.Lock()
	channels := slices.Clone(s.channels)
	s.mu.Unlock()
	for _, ch := range channels {
		ch.Send(ev)
	}
}

// OpenChannels counts channels that have not been closed.
func (s *FakeStore) OpenChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ch := range s.channels {
		if !ch.Closed() {
			n++
		}
	}
	return n
}

// UpdateCalls returns a copy of the recorded status updates.
func (s *FakeStore) UpdateCalls() []StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Updates)
}

// InsertCalls returns a copy of the recorded inserts.
func (s *FakeStore) InsertCalls() []models.NewSongRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Inserts)
}

// FakeChannel is a [requests.Channel] fed by [FakeChannel.Send].
type FakeChannel struct {
	mu     sync.Mutex
	events chan requests.ChangeEvent
	closed bool
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{events: make(chan requests.ChangeEvent, 16)}
}

func (c *FakeChannel) Events() <-chan requests.ChangeEvent { return c.events }

// Send delivers ev unless the channel is closed.
func (c *FakeChannel) Send(ev requests.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// StaticProvider always returns the same store. A nil Store is unconfigured.
type StaticProvider struct {
	S requests.Store
}

func (p StaticProvider) Store() requests.Store {
	if p.S == nil {
		return nil
	}
	return p.S
}

// Provide wraps s, returning an unconfigured provider when s is nil.
func Provide(s *FakeStore) requests.Provider {
	if s == nil {
		return StaticProvider{}
	}
	return StaticProvider{S: s}
}
