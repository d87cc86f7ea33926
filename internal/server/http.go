package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const metricsPath = "/metrics"

// streams are long lived responses, only reading headers is bounded
const readHeaderTimeout = 10 * time.Second

const shutdownTimeout = 5 * time.Second

type ServerManagerCtx struct {
	logger zerolog.Logger
	config *Config
	router *chi.Mux
	server *http.Server
	addr   string
}

func New(config *Config) *ServerManagerCtx {
	logger := log.With().Str("module", "server").Logger()

	router := chi.NewRouter()
	router.Use(middleware.RequestID) // Create a request ID for each request

	// get real users ip
	if config.Proxy {
		router.Use(middleware.RealIP)
	}

	// add http logger
	router.Use(middleware.RequestLogger(&logformatter{logger}))
	router.Use(middleware.Recoverer) // Recover from panics without crashing server

	// serve static files
	if config.Static != "" {
		fs := http.FileServer(http.Dir(config.Static))
		router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			if _, err := os.Stat(config.Static + r.RequestURI); os.IsNotExist(err) {
				http.StripPrefix(r.RequestURI, fs).ServeHTTP(w, r)
			} else {
				fs.ServeHTTP(w, r)
			}
		})
	}

	// mount pprof endpoint
	if config.PProf {
		withPProf(router)
		logger.Info().Msgf("with pprof endpoint at %s", pprofPath)
	}

	// mount prometheus collectors
	if config.Metrics {
		router.Handle(metricsPath, promhttp.Handler())
		logger.Info().Msgf("with metrics endpoint at %s", metricsPath)
	}

	// use custom 404
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		//nolint
		_, _ = w.Write([]byte("404"))
	})

	return &ServerManagerCtx{
		logger: logger,
		config: config,
		router: router,
		server: &http.Server{
			Addr:              config.Bind,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start listens on the configured address and serves in the background.
func (s *ServerManagerCtx) Start() error {
	listener, err := net.Listen("tcp", s.config.Bind)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", s.config.Bind, err)
	}

	s.addr = listener.Addr().String()
	secure := s.config.SSLCert != "" && s.config.SSLKey != ""

	if secure {
		s.logger.Warn().Msg("TLS support is provided for convenience, but you should never use it in production. Use a reverse proxy (apache nginx caddy) instead!")
	}

	go func() {
		var err error
		if secure {
			err = s.server.ServeTLS(listener, s.config.SSLCert, s.config.SSLKey)
		} else {
			err = s.server.Serve(listener)
		}

		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Panic().Err(err).Msg("unable to serve http")
		}
	}()

	s.logger.Info().Bool("tls", secure).Msgf("http listening on %s", s.addr)
	return nil
}

// Addr returns the address the server listens on once started.
func (s *ServerManagerCtx) Addr() string {
	return s.addr
}

// Shutdown waits for requests to finish, running streams are cut off after
// the grace period.
func (s *ServerManagerCtx) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn().Msg("closing remaining connections")
		return s.server.Close()
	}
	return err
}

func (s *ServerManagerCtx) Mount(fn func(r *chi.Mux)) {
	fn(s.router)
}

func (s *ServerManagerCtx) Handler() http.Handler {
	return s.router
}
