package streamlink

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oe-mirrors/streamlink-27/internal/api"
	"github.com/oe-mirrors/streamlink-27/internal/config"
	"github.com/oe-mirrors/streamlink-27/internal/server"
)

var Service *Main

func init() {
	Service = &Main{
		EngineConfig: &config.Engine{},
		ServerConfig: &server.Config{},
	}
}

type Main struct {
	EngineConfig *config.Engine
	ServerConfig *server.Config

	logger        zerolog.Logger
	apiManager    *api.ApiManagerCtx
	serverManager *server.ServerManagerCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) Start() error {
	main.apiManager = api.New(main.EngineConfig, main.ServerConfig.RateLimit)

	main.serverManager = server.New(main.ServerConfig)
	main.serverManager.Mount(func(r *chi.Mux) {
		main.apiManager.Mount(r)
	})
	return main.serverManager.Start()
}

func (main *Main) Shutdown() {
	if err := main.serverManager.Shutdown(); err != nil {
		main.logger.Err(err).Msg("server shutdown with an error")
	} else {
		main.logger.Debug().Msg("server shutdown")
	}
}

func (main *Main) ServeCommand(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.Start(); err != nil {
		main.logger.Fatal().Err(err).Msg("unable to start main server")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.Shutdown()
	main.logger.Info().Msg("shutdown complete")
}
