// package views derives the lists and labels the listener and DJ screens show
// from a request-queue snapshot. Every function is pure.
package views

import (
	"fmt"
	"time"

	"github.com/desertthunder/melodyflow/internal/models"
)

// Pending returns requests awaiting a DJ decision, in snapshot order.
func Pending(c []models.SongRequest) []models.SongRequest {
	return filter(c, func(r models.SongRequest) bool { return r.Status == models.StatusPending })
}

// DJHistory returns requests the DJ has already played or rejected.
func DJHistory(c []models.SongRequest) []models.SongRequest {
	return filter(c, func(r models.SongRequest) bool { return r.Status != models.StatusPending })
}

// ListenerQueue returns what listeners see: everything except rejected requests.
func ListenerQueue(c []models.SongRequest) []models.SongRequest {
	return filter(c, func(r models.SongRequest) bool { return r.Status != models.StatusRejected })
}

// Tally counts requests by status.
type Tally struct {
	Pending  int
	Played   int
	Rejected int
}

func (t Tally) Total() int { return t.Pending + t.Played + t.Rejected }

func Counts(c []models.SongRequest) Tally {
	var t Tally
	for _, r := range c {
		switch r.Status {
		case models.StatusPending:
			t.Pending++
		case models.StatusPlayed:
			t.Played++
		case models.StatusRejected:
			t.Rejected++
		}
	}
	return t
}

// TimeAgo renders the age of createdAt relative to now.
//
// Under a minute is "just now", under an hour is "N minutes ago", anything
// older is "N hours ago" with no day rollover. Future timestamps read as "just now".
func TimeAgo(createdAt, now time.Time) string {
	d := now.Sub(createdAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d/time.Minute))
	default:
		return fmt.Sprintf("%d hours ago", int(d/time.Hour))
	}
}

// FormatDuration renders a track length in milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func filter(c []models.SongRequest, keep func(models.SongRequest) bool) []models.SongRequest {
	out := make([]models.SongRequest, 0, len(c))
	for _, r := range c {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
