package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRequestID(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  RequestID
	}{
		{name: "string", input: `{"id":"abc-123"}`, want: "abc-123"},
		{name: "number", input: `{"id":42}`, want: "42"},
		{name: "null", input: `{"id":null}`, want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			var r SongRequest
			if err := json.Unmarshal([]byte(tt.input), &r); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if r.ID != tt.want {
				t.Errorf("ID = %q, want %q", r.ID, tt.want)
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		var r SongRequest
		if err := json.Unmarshal([]byte(`{"id":true}`), &r); err == nil {
			t.Error("expected error for boolean id")
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("ParseStatus", func(t *testing.T) {
		got, err := ParseStatus(" played ")
		if err != nil || got != StatusPlayed {
			t.Errorf("ParseStatus() = %v, %v", got, err)
		}
		if _, err := ParseStatus("skipped"); err == nil {
			t.Error("expected error for unknown status")
		}
	})

	t.Run("CanTransition", func(t *testing.T) {
		tc := []struct {
			from, to RequestStatus
			want     bool
		}{
			{StatusPending, StatusPlayed, true},
			{StatusPending, StatusRejected, true},
			{StatusPending, StatusPending, false},
			{StatusPlayed, StatusRejected, false},
			{StatusRejected, StatusPending, false},
		}
		for _, tt := range tc {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		}
	})
}

func TestNewRequest(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	payload := NewRequest(
		TrackRef{ID: "t1", Title: "Song", Artist: "Artist", CoverURL: "https://img/1"},
		User{ID: "u1", DisplayName: "Listener"},
		now,
	)

	if payload.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", payload.Status)
	}
	if payload.CreatedAt.Location() != time.UTC {
		t.Error("expected created_at in UTC")
	}
	if err := payload.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"track_id":"t1","title":"Song","artist":"Artist","cover_url":"https://img/1","user_id":"u1","user_name":"Listener","status":"PENDING","created_at":"2024-01-02T02:04:05Z"}`
	if string(data) != want {
		t.Errorf("payload json = %s\nwant %s", data, want)
	}

	if err := (NewSongRequest{TrackID: "t"}).Validate(); err == nil {
		t.Error("expected validation error without user id")
	}
}
