package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	streamlink "github.com/oe-mirrors/streamlink-27"
	"github.com/oe-mirrors/streamlink-27/internal/config"
)

// Default configuration path
const defCfgPath = "/etc/streamlink/"

// ENV prefix for configuration
const envPrefix = "STREAMLINK"

var rootCmd = &cobra.Command{
	Use:           "streamlink",
	Short:         "Streamlink segmented stream downloader.",
	Long:          `Streamlink downloads HLS, DASH and plain HTTP streams and writes them to files, players or HTTP clients.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// reapplied when the config file changes
var onConfigLoad []func()

func init() {
	var cfgFile string
	logConfig := &config.Log{}

	cobra.OnInitialize(func() {
		initConfiguration(cfgFile)

		logConfig.Set()
		logConfig.Apply()

		onConfigLoad = append(onConfigLoad, func() {
			logConfig.Set()
			logConfig.ApplyLevel()
		})

		if file := viper.ConfigFileUsed(); file != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.Info().Str("op", e.Op.String()).Msg("config file reloaded")
				loadConfig()
			})
			viper.WatchConfig()

			log.Info().Str("config", file).Msg("preflight complete with config file")
		} else {
			log.Warn().Msg("preflight complete without config file")
		}

		loadConfig()
		streamlink.Service.Preflight()
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	// shared by all commands
	configs := []config.Config{
		logConfig,
		streamlink.Service.EngineConfig,
	}

	for _, cfg := range configs {
		if err := cfg.Init(rootCmd); err != nil {
			log.Panic().Err(err).Msg("unable to initialize configuration")
		}
	}

	onConfigLoad = append(onConfigLoad, streamlink.Service.EngineConfig.Set)
}

func loadConfig() {
	for _, load := range onConfigLoad {
		load()
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfiguration(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")

		if runtime.GOOS == "linux" {
			viper.AddConfigPath(defCfgPath)
		}
		viper.AddConfigPath(".")
	}

	// STREAMLINK_SEGMENT_THREADS overrides segment-threads
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil && cfgFile != "" {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
}
