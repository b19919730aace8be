package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/views"
)

var _ list.Item = requestItem{}

// requestItem wraps [models.SongRequest] to implement [list.Item].
type requestItem struct {
	request models.SongRequest
	now     time.Time
}

func (i requestItem) FilterValue() string { return i.request.Title }
func (i requestItem) Title() string {
	if i.request.Artist == "" {
		return i.request.Title
	}
	return fmt.Sprintf("%s • %s", i.request.Title, i.request.Artist)
}

func (i requestItem) Description() string {
	parts := make([]string, 0, 3)
	if i.request.UserName != "" {
		parts = append(parts, "requested by "+i.request.UserName)
	}
	parts = append(parts, views.TimeAgo(i.request.CreatedAt, i.now))
	if i.request.Status != models.StatusPending {
		parts = append(parts, string(i.request.Status))
	}
	return strings.Join(parts, " • ")
}

func requestItems(rows []models.SongRequest, now time.Time) []list.Item {
	items := make([]list.Item, len(rows))
	for i, r := range rows {
		items[i] = requestItem{request: r, now: now}
	}
	return items
}

func newRequestList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.DisableQuitKeybindings()
	return l
}
