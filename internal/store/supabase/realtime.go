package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/desertthunder/melodyflow/internal/requests"
)

const (
	// HeartbeatInterval is how often the socket sends a phoenix heartbeat.
	HeartbeatInterval = 25 * time.Second

	writeWait   = 10 * time.Second
	joinTimeout = 10 * time.Second

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
)

// topic is the realtime channel for the requests table.
var topic = "realtime:" + Schema + ":" + Table

// message is a phoenix channel frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

func (c *Client) realtimeURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {c.key}, "vsn": {"1.0.0"}}.Encode()
	return u.String()
}

// Subscribe dials the realtime socket and joins the requests channel. It
// returns once the join is acknowledged.
func (c *Client) Subscribe(ctx context.Context) (requests.Channel, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.realtimeURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	ch := &channel{
		conn:   conn,
		logger: c.logger,
		events: make(chan requests.ChangeEvent, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	join := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{{"event": "*", "schema": Schema, "table": Table}},
		},
		"access_token": c.key,
	}
	joinRef, err := ch.send(topic, eventJoin, join)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("join %s: %w", topic, err)
	}
	if err := ch.awaitJoin(ctx, joinRef); err != nil {
		conn.Close()
		return nil, err
	}

	go ch.readPump()
	go ch.heartbeat(c.heartbeat)
	return ch, nil
}

// channel is one joined realtime topic on its own socket.
type channel struct {
	conn   *websocket.Conn
	logger *log.Logger
	events chan requests.ChangeEvent

	writeMu sync.Mutex
	ref     atomic.Int64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (ch *channel) Events() <-chan requests.ChangeEvent { return ch.events }

// Close leaves the topic, closes the socket and waits for the reader to exit.
func (ch *channel) Close() error {
	var err error
	ch.stopOnce.Do(func() {
		close(ch.stop)
		if _, leaveErr := ch.send(topic, eventLeave, struct{}{}); leaveErr != nil {
			ch.logger.Debug("failed to leave channel", "error", leaveErr)
		}
		ch.writeMu.Lock()
		_ = ch.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		ch.writeMu.Unlock()
		err = ch.conn.Close()
		<-ch.done
	})
	return err
}

func (ch *channel) send(topic, event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	ref := strconv.FormatInt(ch.ref.Add(1), 10)
	msg := message{Topic: topic, Event: event, Payload: data, Ref: &ref}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return "", err
	}
	return ref, ch.conn.WriteJSON(msg)
}

// awaitJoin reads frames until the reply to ref arrives.
func (ch *channel) awaitJoin(ctx context.Context, ref string) error {
	deadline := time.Now().Add(joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ch.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer ch.conn.SetReadDeadline(time.Time{})

	for {
		var msg message
		if err := ch.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("join %s: %w", topic, err)
		}
		if msg.Event != eventReply || msg.Ref == nil || *msg.Ref != ref {
			continue
		}
		var r reply
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return fmt.Errorf("join %s: malformed reply: %w", topic, err)
		}
		if r.Status != "ok" {
			return fmt.Errorf("join %s rejected: %s", topic, strings.TrimSpace(string(r.Response)))
		}
		return nil
	}
}

func (ch *channel) readPump() {
	defer close(ch.done)
	defer close(ch.events)

	for {
		var msg message
		if err := ch.conn.ReadJSON(&msg); err != nil {
			select {
			case <-ch.stop:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ch.logger.Warn("realtime connection lost", "error", err)
				}
			}
			return
		}

		switch msg.Event {
		case eventChanges:
			ev, err := translate(msg.Payload)
			if err != nil {
				ch.logger.Warn("failed to decode change", "error", err)
				continue
			}
			select {
			case ch.events <- ev:
			case <-ch.stop:
				return
			}
		case eventError, eventClose:
			if msg.Topic == topic {
				ch.logger.Warn("realtime channel closed by server", "event", msg.Event)
				return
			}
		}
	}
}

func (ch *channel) heartbeat(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ch.stop:
			return
		case <-ch.done:
			return
		case <-t.C:
			if _, err := ch.send("phoenix", eventHeartbeat, struct{}{}); err != nil {
				ch.logger.Debug("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// translate maps a postgres_changes payload to a [requests.ChangeEvent].
func translate(payload json.RawMessage) (requests.ChangeEvent, error) {
	var p changePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return requests.ChangeEvent{}, err
	}
	typ, err := requests.ParseEventType(p.Data.Type)
	if err != nil {
		return requests.ChangeEvent{}, err
	}

	ev := requests.ChangeEvent{Type: typ}
	if hasRecord(p.Data.Record) {
		if err := json.Unmarshal(p.Data.Record, &ev.New); err != nil {
			return ev, fmt.Errorf("record: %w", err)
		}
	}
	if hasRecord(p.Data.OldRecord) {
		if err := json.Unmarshal(p.Data.OldRecord, &ev.Old); err != nil {
			return ev, fmt.Errorf("old_record: %w", err)
		}
	}
	if ev.ID() == "" {
		return ev, errors.New("change without a row id")
	}
	return ev, nil
}

// hasRecord is false for missing, null and empty-object records.
func hasRecord(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "{}"
}
