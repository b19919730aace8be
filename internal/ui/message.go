package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/notify"
)

// MsgKind enumerates all message types in the console.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRequestsLoaded MsgKind = iota
	MsgFeedEvent
	MsgFeedClosed
	MsgToasts
	MsgTick
)

type loaded struct {
	requests []models.SongRequest
	err      error
}

// requestsLoadedMsg is the constructor for [MsgRequestsLoaded]
func requestsLoadedMsg(rows []models.SongRequest, err error) Msg {
	return Msg{kind: MsgRequestsLoaded, data: loaded{rows, err}}
}

// feedEventMsg is the constructor for [MsgFeedEvent]. The cache has already
// been updated when it arrives; the message only triggers a re-render.
func feedEventMsg() Msg {
	return Msg{kind: MsgFeedEvent}
}

// feedClosedMsg is the constructor for [MsgFeedClosed]
func feedClosedMsg(err error) Msg {
	return Msg{kind: MsgFeedClosed, data: err}
}

// toastsMsg is the constructor for [MsgToasts]
func toastsMsg(toasts []notify.Toast) Msg {
	return Msg{kind: MsgToasts, data: toasts}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
