package main

import (
	"github.com/rs/zerolog/log"

	"github.com/oe-mirrors/streamlink-27/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute command")
	}
}
