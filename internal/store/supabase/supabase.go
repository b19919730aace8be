// package supabase is a request store backed by a hosted Supabase project.
//
// Rows are read and written through the PostgREST endpoint under /rest/v1.
// The change feed joins the realtime websocket under /realtime/v1 and
// listens for postgres_changes on public.requests.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/desertthunder/melodyflow/internal/models"
	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

const (
	Table  = "requests"
	Schema = "public"

	// CodeNoRows is PostgREST's "no rows returned" code; the project is reachable.
	CodeNoRows = "PGRST116"
)

// Client implements requests.Store.
type Client struct {
	base      *url.URL
	key       string
	http      *http.Client
	dialer    *websocket.Dialer
	heartbeat time.Duration
	logger    *log.Logger
}

// Option configures a [Client].
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option  { return func(s *Client) { s.http = c } }
func WithDialer(d *websocket.Dialer) Option { return func(s *Client) { s.dialer = d } }
func WithHeartbeat(d time.Duration) Option  { return func(s *Client) { s.heartbeat = d } }
func WithLogger(l *log.Logger) Option       { return func(s *Client) { s.logger = l } }

// New validates the project URL and key. No network calls are made.
func New(rawURL, key string, opts ...Option) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: store key is empty", shared.ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(rawURL), "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid store url %q", shared.ErrInvalidConfig, rawURL)
	}

	c := &Client{
		base:      u,
		key:       key,
		http:      &http.Client{Timeout: 30 * time.Second},
		dialer:    websocket.DefaultDialer,
		heartbeat: HeartbeatInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	c.logger = shared.WithLogger(c.logger, "component", "supabase", "host", u.Host)
	return c, nil
}

func (c *Client) List(ctx context.Context) ([]models.SongRequest, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	rows := []models.SongRequest{}
	if err := c.do(ctx, "list", http.MethodGet, q, nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, req models.NewSongRequest) (*models.SongRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, &shared.StoreError{Op: "insert", Code: "invalid", Message: err.Error()}
	}

	var rows []models.SongRequest
	hdr := http.Header{"Prefer": {"return=representation"}}
	if err := c.do(ctx, "insert", http.MethodPost, url.Values{"select": {"*"}}, hdr, []models.NewSongRequest{req}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &shared.StoreError{Op: "insert", Message: "no row returned"}
	}
	return &rows[0], nil
}

func (c *Client) UpdateStatus(ctx context.Context, id models.RequestID, status models.RequestStatus) (*models.SongRequest, error) {
	q := url.Values{"id": {"eq." + string(id)}, "select": {"*"}}
	hdr := http.Header{"Prefer": {"return=representation"}}
	body := map[string]models.RequestStatus{"status": status}

	var rows []models.SongRequest
	if err := c.do(ctx, "update", http.MethodPatch, q, hdr, body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &shared.StoreError{Op: "update", Code: "not_found", Message: fmt.Sprintf("request %s not found", id)}
	}
	return &rows[0], nil
}

// Count returns the exact row count, or the count for status when it is set.
func (c *Client) Count(ctx context.Context, status models.RequestStatus) (int, error) {
	q := url.Values{"select": {"count"}}
	if status != "" {
		q.Set("status", "eq."+string(status))
	}
	req, err := c.newRequest(ctx, http.MethodHead, q, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &shared.StoreError{Op: "count", Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, decodeError("count", resp)
	}
	return parseContentRange(resp.Header.Get("Content-Range"))
}

// Probe checks that the project answers an authenticated count query.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Count(ctx, "")
	var se *shared.StoreError
	if errors.As(err, &se) && se.Code == CodeNoRows {
		return nil
	}
	return err
}

// Close releases idle HTTP connections. Open realtime channels are closed by their owners.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) restURL(q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/v1/" + Table
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method string, q url.Values, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.restURL(q), r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, op, method string, q url.Values, hdr http.Header, body, out any) error {
	req, err := c.newRequest(ctx, method, q, body)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("store request failed", "op", op, "error", err)
		return &shared.StoreError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := decodeError(op, resp)
		c.logger.Error("store request rejected", "op", op, "status", resp.StatusCode, "error", err)
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &shared.StoreError{Op: op, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func decodeError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Message == "" {
		return &shared.StoreError{Op: op, Code: strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}
	msg := eb.Message
	if eb.Details != "" {
		msg += ": " + eb.Details
	}
	return &shared.StoreError{Op: op, Code: eb.Code, Message: msg, Hint: eb.Hint}
}

// parseContentRange reads the total from "0-24/3573" or "*/0".
func parseContentRange(h string) (int, error) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, &shared.StoreError{Op: "count", Message: fmt.Sprintf("missing count in content range %q", h)}
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, &shared.StoreError{Op: "count", Message: fmt.Sprintf("invalid content range %q", h)}
	}
	return n, nil
}

var _ requests.Store = (*Client)(nil)
