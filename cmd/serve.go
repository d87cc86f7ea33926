package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	streamlink "github.com/oe-mirrors/streamlink-27"
	"github.com/oe-mirrors/streamlink-27/internal/config"
)

func init() {
	command := &cobra.Command{
		Use:   "serve",
		Short: "serve streams over http",
		Long:  `serve selected streams over http, GET /api/stream?url=URL&quality=QUALITY`,
		Run:   streamlink.Service.ServeCommand,
	}

	configs := []config.Config{
		streamlink.Service.ServerConfig,
	}

	cobra.OnInitialize(func() {
		for _, cfg := range configs {
			cfg.Set()
		}
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
