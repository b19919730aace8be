// Package ui implements the DJ console using bubbletea's Elm architecture.
//
// The console shows three panes over the live request queue:
//  1. [PendingPane] : requests waiting for a decision, newest first
//  2. [HistoryPane] : requests already played or rejected
//  3. [QueuePane] : what listeners see, everything but rejected requests
//
// The [Model] loads the queue once, then keeps it current through the change
// feed. Feed events are applied to the [requests.Queue] cache by its router
// goroutine and forwarded to the program through a channel-backed [tea.Cmd],
// so every render reads a consistent snapshot. Toasts from the [notify.Bus]
// arrive the same way and render in the footer.
//
// Marking a request played (p) or rejected (x) updates the queue
// optimistically. A failed write surfaces as an error toast.
package ui
