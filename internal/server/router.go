package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChiRouter implements [Router] over a chi mux.
//
// A panicking handler is recovered and answered with a 500.
type ChiRouter struct {
	mux chi.Router
}

// NewChiRouter creates a [ChiRouter] with the recoverer installed.
func NewChiRouter() *ChiRouter {
	mux := chi.NewRouter()
	mux.Use(chimiddleware.Recoverer)
	return &ChiRouter{mux: mux}
}

// Use adds [Middleware] to the stack. chi requires all middleware to be added before the first route.
func (r *ChiRouter) Use(middleware ...Middleware) {
	for _, m := range middleware {
		r.mux.Use(m)
	}
}

// Handle registers handler for method and path. Other methods on path get a 405.
func (r *ChiRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Method(method, path, handler)
}

// Handler registers handler for GET on each of its routes.
func (r *ChiRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Method(http.MethodGet, route, handler)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *ChiRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
