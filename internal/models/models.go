package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a [SongRequest].
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusPlayed   RequestStatus = "PLAYED"
	StatusRejected RequestStatus = "REJECTED"
)

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (RequestStatus, error) {
	switch st := RequestStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusPlayed, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown request status %q", s)
	}
}

// Terminal reports whether s is PLAYED or REJECTED.
func (s RequestStatus) Terminal() bool {
	return s == StatusPlayed || s == StatusRejected
}

// CanTransition reports whether a request may move from s to next.
// Only PENDING requests change, and only to a terminal status.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
	return s == StatusPending && next.Terminal()
}

// RequestID is a store-assigned identifier. Stores may send it as a JSON string or number.
type RequestID string

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RequestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid request id %s: %w", data, err)
	}
	*id = RequestID(n.String())
	return nil
}

func (id RequestID) String() string { return string(id) }

// SongRequest is a listener's request for a track.
type SongRequest struct {
	ID        RequestID     `json:"id" db:"id"`
	TrackID   string        `json:"track_id" db:"track_id"`
	Title     string        `json:"title" db:"title"`
	Artist    string        `json:"artist" db:"artist"`
	CoverURL  string        `json:"cover_url" db:"cover_url"`
	UserID    string        `json:"user_id" db:"user_id"`
	UserName  string        `json:"user_name" db:"user_name"`
	Status    RequestStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// NewSongRequest is the payload written when a request is submitted.
type NewSongRequest struct {
	TrackID   string        `json:"track_id" db:"track_id"`
	Title     string        `json:"title" db:"title"`
	Artist    string        `json:"artist" db:"artist"`
	CoverURL  string        `json:"cover_url" db:"cover_url"`
	UserID    string        `json:"user_id" db:"user_id"`
	UserName  string        `json:"user_name" db:"user_name"`
	Status    RequestStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Validate checks the fields every store requires.
func (n NewSongRequest) Validate() error {
	switch {
	case n.TrackID == "":
		return fmt.Errorf("track id is required")
	case n.UserID == "":
		return fmt.Errorf("user id is required")
	case n.Status == "":
		return fmt.Errorf("status is required")
	}
	return nil
}

// Request materializes the payload under id.
func (n NewSongRequest) Request(id RequestID) SongRequest {
	return SongRequest{
		ID:        id,
		TrackID:   n.TrackID,
		Title:     n.Title,
		Artist:    n.Artist,
		CoverURL:  n.CoverURL,
		UserID:    n.UserID,
		UserName:  n.UserName,
		Status:    n.Status,
		CreatedAt: n.CreatedAt,
	}
}

// TrackRef carries the catalog fields copied into a request: the first listed
// artist and the first album image.
type TrackRef struct {
	ID       string
	Title    string
	Artist   string
	CoverURL string
	URI      string
}

// User is the authenticated listener.
type User struct {
	ID          string
	DisplayName string
}

// NewRequest builds a PENDING insert payload for track submitted by user at now.
func NewRequest(track TrackRef, user User, now time.Time) NewSongRequest {
	return NewSongRequest{
		TrackID:   track.ID,
		Title:     track.Title,
		Artist:    track.Artist,
		CoverURL:  track.CoverURL,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
}
