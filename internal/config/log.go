package config

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Log struct {
	Level      string
	Console    bool
	JSON       bool   // write raw JSON to stderr instead of the console format
	File       string // empty disables file logging
	MaxAge     int    // days
	MaxSize    int    // megabytes
	MaxBackups int
}

func (Log) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("log.level", "", "set log level")
	if err := viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log.level")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.console", true, "enable logging to stderr")
	if err := viper.BindPFlag("log.console", cmd.PersistentFlags().Lookup("log.console")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("log.json", false, "log to stderr as JSON")
	if err := viper.BindPFlag("log.json", cmd.PersistentFlags().Lookup("log.json")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("log.file", "", "enable file logging and specify its path")
	if err := viper.BindPFlag("log.file", cmd.PersistentFlags().Lookup("log.file")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxage", 0, "max age in days to keep a logfile")
	if err := viper.BindPFlag("log.maxage", cmd.PersistentFlags().Lookup("log.maxage")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxsize", 100, "max size in MB of the logfile before it's rolled")
	if err := viper.BindPFlag("log.maxsize", cmd.PersistentFlags().Lookup("log.maxsize")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("log.maxbackups", 0, "max number of rolled files to keep")
	if err := viper.BindPFlag("log.maxbackups", cmd.PersistentFlags().Lookup("log.maxbackups")); err != nil {
		return err
	}

	return nil
}

func (l *Log) Set() {
	l.Level = viper.GetString("log.level")
	l.Console = viper.GetBool("log.console")
	l.JSON = viper.GetBool("log.json")
	l.File = viper.GetString("log.file")
	l.MaxAge = viper.GetInt("log.maxage")
	l.MaxSize = viper.GetInt("log.maxsize")
	l.MaxBackups = viper.GetInt("log.maxbackups")
}

// Apply replaces the global logger. Stdout is never used, it may carry
// the stream itself.
func (l *Log) Apply() {
	writers := []io.Writer{}

	switch {
	case l.Console && l.JSON:
		writers = append(writers, os.Stderr)
	case l.Console:
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if l.File != "" {
		logger := &lumberjack.Logger{
			Filename:   l.File,
			MaxAge:     l.MaxAge,
			MaxSize:    l.MaxSize,
			MaxBackups: l.MaxBackups,
		}

		// rotate in response to SIGHUP
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGHUP)

		go func() {
			for range c {
				if err := logger.Rotate(); err != nil {
					log.Err(err).Msg("unable to rotate log file")
				}
			}
		}()

		writers = append(writers, logger)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.MultiLevelWriter(writers...))

	l.ApplyLevel()

	log.Info().
		Bool("console", l.Console).
		Bool("json", l.JSON).
		Str("file", l.File).
		Int("maxage", l.MaxAge).
		Int("maxsize", l.MaxSize).
		Int("maxbackups", l.MaxBackups).
		Msg("logging configured")
}

// ApplyLevel sets the global log level, unknown levels fall back to info.
func (l *Log) ApplyLevel() {
	if l.Level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}

	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Str("log-level", l.Level).Msg("unknown log level")
		return
	}

	zerolog.SetGlobalLevel(level)
}
