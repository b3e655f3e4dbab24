package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

type RouterOptions struct {
	API             *API
	WebSocket       http.Handler
	Metrics         http.Handler
	CORSOrigins     []string
	RateLimitPerMin int
}

// NewRouter mounts the websocket endpoint, the REST API and metrics. The rate
// limit applies to REST routes only; /ws connections are capped by the
// registry instead.
func NewRouter(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMin, time.Minute))
		}
		if opts.API != nil {
			opts.API.metrics = opts.Metrics
			opts.API.Routes(r)
		}
	})
	return r
}
