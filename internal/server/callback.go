package server

import (
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// CallbackResult is the outcome of the single accepted callback.
type CallbackResult struct {
	Code string
	Err  error
}

// CallbackHandler accepts exactly one OAuth redirect on its path.
//
// The state parameter must match. On success the authorization code is
// delivered on [CallbackHandler.Result] and the browser is redirected to "/"
// so the code does not stay in the address bar. Later callbacks are refused.
type CallbackHandler struct {
	path   string
	state  string
	result chan CallbackResult

	mu   sync.Mutex
	hit  bool
	once sync.Once
}

// NewCallbackHandler serves path and expects state.
func NewCallbackHandler(path, state string) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	return &CallbackHandler{path: path, state: state, result: make(chan CallbackResult, 1)}
}

func (h *CallbackHandler) Routes() []string {
	return []string{h.path}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.send(CallbackResult{Err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthorizationFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		reason := q.Get("error_description")
		if reason == "" {
			reason = q.Get("error")
		}
		if reason == "" {
			reason = "no authorization code"
		}
		h.send(CallbackResult{Err: fmt.Errorf("%w: %s", shared.ErrAuthorizationFailed, reason)})
		http.Error(w, "Authorization failed: "+reason, http.StatusBadRequest)
		return
	}

	h.send(CallbackResult{Code: code})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// send delivers the result once and closes the channel.
func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.result <- result
		close(h.result)
	})
}

// Result receives exactly one value, then is closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.result
}

var donePage = template.Must(template.New("done").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #09090b; color: #fafafa; }
        .container { text-align: center; background: #18181b; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.4); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #a1a1aa; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// DoneHandler renders the landing page the callback redirects to.
type DoneHandler struct{}

func (DoneHandler) Routes() []string { return []string{"/"} }

func (DoneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = donePage.Execute(w, struct{ Title, Message string }{
		Title:   "✓ Logged in to MelodyFlow",
		Message: "You can close this window and return to the terminal.",
	})
}

// NewCallbackRouter wires the callback and landing page onto a [ChiRouter].
func NewCallbackRouter(h *CallbackHandler) *ChiRouter {
	r := NewChiRouter()
	r.Handler(h)
	r.Handler(DoneHandler{})
	return r
}
