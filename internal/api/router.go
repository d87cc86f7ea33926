package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/internal/config"
)

const rateLimitWindow = time.Minute

type ApiManagerCtx struct {
	logger    zerolog.Logger
	engine    *config.Engine
	rateLimit int
}

// New returns the stream API. A positive rateLimit allows that many API
// requests per minute from one address.
func New(engine *config.Engine, rateLimit int) *ApiManagerCtx {
	return &ApiManagerCtx{
		logger:    log.With().Str("module", "api").Logger(),
		engine:    engine,
		rateLimit: rateLimit,
	}
}

func (a *ApiManagerCtx) Mount(r *chi.Mux) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		//nolint
		w.Write([]byte("pong"))
	})

	r.Route("/api", func(r chi.Router) {
		if a.rateLimit > 0 {
			r.Use(a.limiter())
		}

		r.Get("/streams", a.streams)
		r.Get("/stream", a.stream)
	})
}

func (a *ApiManagerCtx) limiter() func(http.Handler) http.Handler {
	return httprate.Limit(
		a.rateLimit,
		rateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateLimitWindow.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			//nolint
			w.Write([]byte("429 too many requests"))
		}),
	)
}
