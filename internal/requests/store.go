package requests

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/melodyflow/internal/models"
)

// EventType is the kind of row change delivered by a change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one row change. New is set for INSERT and UPDATE; Old is set
// for DELETE and may carry only the id.
type ChangeEvent struct {
	Type EventType           `json:"type"`
	New  *models.SongRequest `json:"record,omitempty"`
	Old  *models.SongRequest `json:"old_record,omitempty"`
}

// ID returns the id of the affected row.
func (e ChangeEvent) ID() models.RequestID {
	if e.Type == EventDelete && e.Old != nil {
		return e.Old.ID
	}
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

// ParseEventType accepts INSERT, UPDATE or DELETE in any case.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EventInsert, EventUpdate, EventDelete:
		return t, nil
	default:
		return "", fmt.Errorf("unknown change event type %q", s)
	}
}

// Store is a backing store for song requests.
//
// List returns rows ordered by created_at, newest first. Subscribe opens one
// change-feed channel; the caller must Close it.
type Store interface {
	List(ctx context.Context) ([]models.SongRequest, error)
	Insert(ctx context.Context, req models.NewSongRequest) (*models.SongRequest, error)
	UpdateStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) (*models.SongRequest, error)
	Subscribe(ctx context.Context) (Channel, error)
	Close() error
}

// Channel is an open change-feed subscription.
//
// Close stops delivery and closes the Events channel. Events is also closed
// when the feed ends on its own.
type Channel interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Provider hands out the current store. Store returns nil when no store is configured.
// Callers ask again for every operation instead of keeping the handle.
type Provider interface {
	Store() Store
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func() Store

func (f ProviderFunc) Store() Store { return f() }
