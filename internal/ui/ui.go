package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/notify"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
	"github.com/desertthunder/melodyflow/internal/views"
)

// Pane is one of the console's request lists.
type Pane int

const (
	PendingPane Pane = iota
	HistoryPane
	QueuePane
)

var paneTitles = [...]string{"Pending", "History", "Listener Queue"}

func (p Pane) String() string { return paneTitles[p] }

// RefreshInterval re-renders relative timestamps.
const RefreshInterval = 30 * time.Second

// Model represents the DJ console state.
type Model struct {
	ctx    context.Context
	queue  *requests.Queue
	bus    *notify.Bus
	clock  clockwork.Clock
	logger *log.Logger

	pane   Pane
	lists  [3]list.Model
	tally  views.Tally
	toasts []notify.Toast

	events chan Msg
	notes  *notify.Subscription
	mu     sync.Mutex
	feed   *requests.Subscription

	width  int
	height int
	err    error
	help   help.Model
	keys   keyMap
}

// Option configures a [Model].
type Option func(*Model)

func WithClock(c clockwork.Clock) Option { return func(m *Model) { m.clock = c } }
func WithLogger(l *log.Logger) Option    { return func(m *Model) { m.logger = l } }

// NewModel creates the console over queue. Toasts published on bus are shown in the footer.
func NewModel(ctx context.Context, queue *requests.Queue, bus *notify.Bus, opts ...Option) *Model {
	m := &Model{
		ctx:    ctx,
		queue:  queue,
		bus:    bus,
		clock:  clockwork.NewRealClock(),
		events: make(chan Msg, 64),
		help:   help.New(),
		keys:   newKeyMap(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = notify.NewBus(notify.WithClock(m.clock))
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	m.logger = shared.WithLogger(m.logger, "component", "ui")
	for p := range m.lists {
		m.lists[p] = newRequestList(Pane(p).String())
	}
	return m
}

// Init loads the queue, opens the change feed and starts listening for toasts.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadRequests(), m.openFeed(), m.watchToasts(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for p := range m.lists {
			m.lists[p].SetSize(msg.Width-4, msg.Height-10)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.lists[m.pane], cmd = m.lists[m.pane].Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgRequestsLoaded:
		data := msg.data.(loaded)
		if data.err != nil {
			m.err = data.err
			m.bus.Error("Could not load requests")
			return m, nil
		}
		m.err = nil
		m.refresh()
		return m, nil

	case MsgFeedEvent:
		m.refresh()
		return m, m.waitForEvent()

	case MsgFeedClosed:
		if err, _ := msg.data.(error); err != nil {
			m.logger.Warn("change feed stopped", "error", err)
			m.bus.Error("Live updates stopped")
		}
		return m, nil

	case MsgToasts:
		m.toasts = msg.data.([]notify.Toast)
		return m, m.waitForToasts()

	case MsgTick:
		m.refresh()
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.next):
		m.pane = (m.pane + 1) % Pane(len(m.lists))
		return m, nil
	case key.Matches(msg, m.keys.prev):
		m.pane = (m.pane + Pane(len(m.lists)) - 1) % Pane(len(m.lists))
		return m, nil
	case key.Matches(msg, m.keys.reload):
		return m, m.loadRequests()
	case key.Matches(msg, m.keys.played):
		m.decide(models.StatusPlayed)
		return m, nil
	case key.Matches(msg, m.keys.reject):
		m.decide(models.StatusRejected)
		return m, nil
	}

	var cmd tea.Cmd
	m.lists[m.pane], cmd = m.lists[m.pane].Update(msg)
	return m, cmd
}

// decide applies status to the selected pending request. The queue updates
// its cache before returning, so the panes are rebuilt right away.
func (m *Model) decide(status models.RequestStatus) {
	if m.pane != PendingPane {
		return
	}
	item, ok := m.lists[PendingPane].SelectedItem().(requestItem)
	if !ok {
		return
	}

	if err := m.queue.SetStatus(m.ctx, item.request.ID, status); err != nil {
		if errors.Is(err, shared.ErrInvalidTransition) {
			m.bus.Error("Request was already handled")
		} else {
			m.bus.Error(fmt.Sprintf("Could not mark request as %s", strings.ToLower(string(status))))
		}
		return
	}
	m.bus.Success(fmt.Sprintf("%s marked as %s", item.request.Title, strings.ToLower(string(status))))
	m.refresh()
}

// refresh rebuilds every pane from the queue snapshot.
func (m *Model) refresh() {
	snap := m.queue.Snapshot()
	now := m.clock.Now()

	m.tally = views.Counts(snap)
	m.lists[PendingPane].SetItems(requestItems(views.Pending(snap), now))
	m.lists[HistoryPane].SetItems(requestItems(views.DJHistory(snap), now))
	m.lists[QueuePane].SetItems(requestItems(views.ListenerQueue(snap), now))
}

func (m *Model) loadRequests() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.queue.LoadAll(m.ctx)
		return requestsLoadedMsg(rows, err)
	}
}

// openFeed subscribes to the change feed. Handlers run on the queue's router
// goroutine and only signal the program; they never block past ctx.
func (m *Model) openFeed() tea.Cmd {
	return func() tea.Msg {
		signal := func() {
			select {
			case m.events <- feedEventMsg():
			case <-m.ctx.Done():
			}
		}
		sub, err := m.queue.Subscribe(m.ctx, requests.Handlers{
			OnInsert: func(models.SongRequest) { signal() },
			OnUpdate: func(models.SongRequest) { signal() },
			OnDelete: func(models.RequestID) { signal() },
		})
		if err != nil {
			return feedClosedMsg(err)
		}
		m.mu.Lock()
		m.feed = sub
		m.mu.Unlock()
		go func() {
			select {
			case <-sub.Done():
				select {
				case m.events <- feedClosedMsg(requests.ErrFeedClosed):
				case <-m.ctx.Done():
				}
			case <-m.ctx.Done():
			}
		}()
		return m.waitForEvent()()
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) watchToasts() tea.Cmd {
	m.notes = m.bus.Subscribe()
	return m.waitForToasts()
}

func (m *Model) waitForToasts() tea.Cmd {
	notes := m.notes
	return func() tea.Msg {
		toasts, ok := <-notes.Updates()
		if !ok {
			return nil
		}
		return toastsMsg(toasts)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Close releases the change feed and the toast subscription.
// Call it after the program exits.
func (m *Model) Close() error {
	if m.notes != nil {
		m.notes.Close()
	}
	m.mu.Lock()
	feed := m.feed
	m.mu.Unlock()
	if feed != nil {
		return feed.Close()
	}
	return nil
}

// View renders the console.
func (m *Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("MelodyFlow DJ • %d pending", m.tally.Pending)
	b.WriteString(styles.title.Render(header))
	b.WriteString("\n")

	if !m.queue.Configured() {
		b.WriteString(styles.banner.Render("Backing store not configured. Showing demo data only; run `melodyflow settings set` to connect."))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.lists[m.pane].View())
	b.WriteString("\n")

	for _, t := range m.toasts {
		b.WriteString(styles.Toast(t))
		b.WriteString("\n")
	}

	helpKeys := []key.Binding{m.keys.next, m.keys.reload, m.keys.quit}
	if m.pane == PendingPane {
		helpKeys = append([]key.Binding{m.keys.played, m.keys.reject}, helpKeys...)
	}
	b.WriteString(m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderTabs() string {
	counts := [...]int{m.tally.Pending, m.tally.Played + m.tally.Rejected, m.tally.Pending + m.tally.Played}
	tabs := make([]string, len(m.lists))
	for p := range m.lists {
		label := fmt.Sprintf("%s (%d)", Pane(p), counts[p])
		if Pane(p) == m.pane {
			tabs[p] = styles.active.Render(label)
		} else {
			tabs[p] = styles.tab.Render(label)
		}
	}
	return strings.Join(tabs, " ")
}
