package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/melodyflow/internal/shared"
)

func TestChiRouter(t *testing.T) {
	t.Run("applies middleware in order", func(t *testing.T) {
		r := NewChiRouter()
		var order []string
		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, req)
				})
			}
		}
		r.Use(tag("first"), tag("second"))
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pong"))
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		if rec.Body.String() != "pong" {
			t.Errorf("expected pong, got %q", rec.Body.String())
		}
		if strings.Join(order, ",") != "first,second" {
			t.Errorf("unexpected middleware order: %v", order)
		}
	})

	t.Run("method mismatch", func(t *testing.T) {
		r := NewChiRouter()
		r.Handle(http.MethodPost, "/submit", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		r := NewChiRouter()
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	t.Run("delivers code and redirects home", func(t *testing.T) {
		h := NewCallbackHandler("/callback", "xyz")
		r := NewCallbackRouter(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=xyz", nil))

		if rec.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/" {
			t.Errorf("expected redirect to /, got %q", loc)
		}

		res := <-h.Result()
		if res.Err != nil || res.Code != "abc" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("only the first callback counts", func(t *testing.T) {
		h := NewCallbackHandler("/callback", "xyz")

		first := httptest.NewRecorder()
		h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/callback?code=one&state=xyz", nil))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/callback?code=two&state=xyz", nil))

		if second.Code != http.StatusBadRequest {
			t.Errorf("expected replay to be refused, got %d", second.Code)
		}
		if res := <-h.Result(); res.Code != "one" {
			t.Errorf("expected first code, got %q", res.Code)
		}
		if _, open := <-h.Result(); open {
			t.Error("expected result channel to be closed")
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		h := NewCallbackHandler("", "xyz")
		if h.Routes()[0] != "/callback" {
			t.Errorf("expected default path, got %v", h.Routes())
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=abc&state=forged", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		res := <-h.Result()
		if !errors.Is(res.Err, shared.ErrAuthorizationFailed) || res.Code != "" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("provider error is surfaced", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
			want  string
		}{
			{name: "description", query: "error=access_denied&error_description=User+denied+access", want: "User denied access"},
			{name: "code only", query: "error=access_denied", want: "access_denied"},
			{name: "nothing", query: "", want: "no authorization code"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := NewCallbackHandler("/callback", "s")
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?state=s&"+tt.query, nil))

				res := <-h.Result()
				if res.Err == nil || !strings.Contains(res.Err.Error(), tt.want) {
					t.Errorf("expected error containing %q, got %v", tt.want, res.Err)
				}
				if !strings.Contains(rec.Body.String(), tt.want) {
					t.Errorf("expected body to mention %q, got %q", tt.want, rec.Body.String())
				}
			})
		}
	})

	t.Run("landing page", func(t *testing.T) {
		r := NewCallbackRouter(NewCallbackHandler("/callback", "s"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Logged in to MelodyFlow") {
			t.Errorf("unexpected page: %s", rec.Body.String())
		}
	})
}
