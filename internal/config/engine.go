package config

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oe-mirrors/streamlink-27/pkg/muxer"
	"github.com/oe-mirrors/streamlink-27/pkg/segmented"
	"github.com/oe-mirrors/streamlink-27/pkg/selector"
	"github.com/oe-mirrors/streamlink-27/pkg/stream"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

// Engine holds stream engine options. Set may run again when the config
// file changes, running sessions keep the options they started with.
type Engine struct {
	mu sync.RWMutex

	SegmentAttempts int
	SegmentThreads  int
	SegmentTimeout  time.Duration
	MaxInFlight     int
	RequestRate     float64

	ReloadFallback         time.Duration
	ReloadTime             string
	PlaylistReloadAttempts int
	LiveEdge               int
	LiveRestart            bool
	StreamTimeout          time.Duration
	MaxEmptyReloads        int

	FilterAds               bool
	FailFast                bool
	DecryptFailureThreshold int

	AudioLocale string
	AudioSelect []string
	Excludes    []string

	StartOffset    time.Duration
	Duration       time.Duration
	RingBufferSize int

	HTTPHeaders  map[string]string
	HTTPProxy    string
	HTTPInsecure bool
	HTTPTimeout  time.Duration

	FFmpegBinary string
}

func (e *Engine) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Int("segment-attempts", 3, "how many attempts are made to download each segment")
	if err := viper.BindPFlag("segment-attempts", cmd.PersistentFlags().Lookup("segment-attempts")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("segment-threads", 1, "how many segments are downloaded concurrently")
	if err := viper.BindPFlag("segment-threads", cmd.PersistentFlags().Lookup("segment-threads")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("segment-timeout", 10*time.Second, "timeout of a single segment request")
	if err := viper.BindPFlag("segment-timeout", cmd.PersistentFlags().Lookup("segment-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("max-in-flight", 20, "how many downloaded segments may wait for in-order output")
	if err := viper.BindPFlag("max-in-flight", cmd.PersistentFlags().Lookup("max-in-flight")); err != nil {
		return err
	}

	cmd.PersistentFlags().Float64("request-rate", 0, "maximum segment requests per second, 0 disables the limit")
	if err := viper.BindPFlag("request-rate", cmd.PersistentFlags().Lookup("request-rate")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("reload-fallback", 6*time.Second, "playlist reload interval when the playlist gives no hint")
	if err := viper.BindPFlag("reload-fallback", cmd.PersistentFlags().Lookup("reload-fallback")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("reload-time", "", "playlist reload interval: segment, live-edge or number of seconds")
	if err := viper.BindPFlag("reload-time", cmd.PersistentFlags().Lookup("reload-time")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("playlist-reload-attempts", 3, "consecutive failed playlist reloads before giving up")
	if err := viper.BindPFlag("playlist-reload-attempts", cmd.PersistentFlags().Lookup("playlist-reload-attempts")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("live-edge", 3, "how many segments from the end of a live playlist to start with")
	if err := viper.BindPFlag("live-edge", cmd.PersistentFlags().Lookup("live-edge")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("live-restart", false, "start live streams from the beginning of the playlist")
	if err := viper.BindPFlag("live-restart", cmd.PersistentFlags().Lookup("live-restart")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("stream-timeout", 60*time.Second, "end live streams without new segments for this long")
	if err := viper.BindPFlag("stream-timeout", cmd.PersistentFlags().Lookup("stream-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("max-empty-reloads", 0, "end live streams after this many reloads without new segments, 0 derives it from stream-timeout")
	if err := viper.BindPFlag("max-empty-reloads", cmd.PersistentFlags().Lookup("max-empty-reloads")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("filter-ads", false, "download but do not output advertisement segments")
	if err := viper.BindPFlag("filter-ads", cmd.PersistentFlags().Lookup("filter-ads")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("fail-fast", false, "end the stream when a segment can not be downloaded")
	if err := viper.BindPFlag("fail-fast", cmd.PersistentFlags().Lookup("fail-fast")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("decrypt-failure-threshold", 5, "consecutive segments that fail to decrypt before giving up")
	if err := viper.BindPFlag("decrypt-failure-threshold", cmd.PersistentFlags().Lookup("decrypt-failure-threshold")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("audio-locale", "", "preferred audio language, e.g. en_US")
	if err := viper.BindPFlag("audio-locale", cmd.PersistentFlags().Lookup("audio-locale")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("audio-select", nil, "audio tracks to select by language or name, * selects all")
	if err := viper.BindPFlag("audio-select", cmd.PersistentFlags().Lookup("audio-select")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("excludes", nil, "qualities excluded from best and worst, e.g. >720p")
	if err := viper.BindPFlag("excludes", cmd.PersistentFlags().Lookup("excludes")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("start-offset", 0, "skip this much of the stream")
	if err := viper.BindPFlag("start-offset", cmd.PersistentFlags().Lookup("start-offset")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("duration", 0, "stop after this much of the stream, 0 is unlimited")
	if err := viper.BindPFlag("duration", cmd.PersistentFlags().Lookup("duration")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("ringbuffer-size", 16*1024*1024, "size of the stream buffer in bytes")
	if err := viper.BindPFlag("ringbuffer-size", cmd.PersistentFlags().Lookup("ringbuffer-size")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("http-header", nil, "header added to every request as Name=Value")
	if err := viper.BindPFlag("http-header", cmd.PersistentFlags().Lookup("http-header")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("http-proxy", "", "proxy used for every request")
	if err := viper.BindPFlag("http-proxy", cmd.PersistentFlags().Lookup("http-proxy")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("http-insecure", false, "skip TLS certificate verification")
	if err := viper.BindPFlag("http-insecure", cmd.PersistentFlags().Lookup("http-insecure")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("http-timeout", 20*time.Second, "timeout of manifest requests")
	if err := viper.BindPFlag("http-timeout", cmd.PersistentFlags().Lookup("http-timeout")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("ffmpeg-binary", "ffmpeg", "ffmpeg executable used to mux separate audio and video")
	if err := viper.BindPFlag("ffmpeg-binary", cmd.PersistentFlags().Lookup("ffmpeg-binary")); err != nil {
		return err
	}

	return nil
}

func (e *Engine) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.SegmentAttempts = viper.GetInt("segment-attempts")
	e.SegmentThreads = viper.GetInt("segment-threads")
	e.SegmentTimeout = viper.GetDuration("segment-timeout")
	e.MaxInFlight = viper.GetInt("max-in-flight")
	e.RequestRate = viper.GetFloat64("request-rate")

	e.ReloadFallback = viper.GetDuration("reload-fallback")
	e.ReloadTime = viper.GetString("reload-time")
	e.PlaylistReloadAttempts = viper.GetInt("playlist-reload-attempts")
	e.LiveEdge = viper.GetInt("live-edge")
	e.LiveRestart = viper.GetBool("live-restart")
	e.StreamTimeout = viper.GetDuration("stream-timeout")
	e.MaxEmptyReloads = viper.GetInt("max-empty-reloads")

	e.FilterAds = viper.GetBool("filter-ads")
	e.FailFast = viper.GetBool("fail-fast")
	e.DecryptFailureThreshold = viper.GetInt("decrypt-failure-threshold")

	e.AudioLocale = viper.GetString("audio-locale")
	e.AudioSelect = viper.GetStringSlice("audio-select")
	e.Excludes = viper.GetStringSlice("excludes")

	e.StartOffset = viper.GetDuration("start-offset")
	e.Duration = viper.GetDuration("duration")
	e.RingBufferSize = viper.GetInt("ringbuffer-size")

	e.HTTPHeaders = parseHeaders(viper.GetStringSlice("http-header"))
	e.HTTPProxy = viper.GetString("http-proxy")
	e.HTTPInsecure = viper.GetBool("http-insecure")
	e.HTTPTimeout = viper.GetDuration("http-timeout")

	e.FFmpegBinary = viper.GetString("ffmpeg-binary")
}

func parseHeaders(values []string) map[string]string {
	headers := map[string]string{}
	for _, value := range values {
		name, content, ok := strings.Cut(value, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			log.Warn().Str("header", value).Msg("ignoring http header without name")
			continue
		}
		headers[name] = strings.TrimSpace(content)
	}
	return headers
}

func (e *Engine) Session() segmented.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return segmented.Config{
		SegmentAttempts: e.SegmentAttempts,
		Threads:         e.SegmentThreads,
		SegmentTimeout:  e.SegmentTimeout,
		MaxInFlight:     e.MaxInFlight,
		RequestRate:     e.RequestRate,

		ReloadFallback:         e.ReloadFallback,
		ReloadTime:             e.ReloadTime,
		PlaylistReloadAttempts: e.PlaylistReloadAttempts,
		LiveEdge:               e.LiveEdge,
		LiveRestart:            e.LiveRestart,
		StreamTimeout:          e.StreamTimeout,
		MaxEmptyReloads:        e.MaxEmptyReloads,

		StartOffset:   e.StartOffset,
		DurationLimit: e.Duration,

		FailFast:                e.FailFast,
		DecryptFailureThreshold: e.DecryptFailureThreshold,

		RingBufferSize: e.RingBufferSize,
	}
}

func (e *Engine) Transport() transport.Options {
	e.mu.RLock()
	defer e.mu.RUnlock()

	headers := make(map[string]string, len(e.HTTPHeaders))
	for name, value := range e.HTTPHeaders {
		headers[name] = value
	}

	return transport.Options{
		Headers:  headers,
		Proxy:    e.HTTPProxy,
		Insecure: e.HTTPInsecure,
		Timeout:  e.HTTPTimeout,
	}
}

// Stream returns options for opening streams with a new HTTP client.
func (e *Engine) Stream() (stream.Options, error) {
	client, err := transport.NewClient(e.Transport())
	if err != nil {
		return stream.Options{}, err
	}

	session := e.Session()

	e.mu.RLock()
	defer e.mu.RUnlock()

	return stream.Options{
		Client:  client,
		Session: session,
		Selector: selector.Options{
			Excludes: append([]string(nil), e.Excludes...),
		},
		Audio: selector.AudioOptions{
			Locale: e.AudioLocale,
			Select: append([]string(nil), e.AudioSelect...),
		},
		FilterAds: e.FilterAds,
		FFmpeg: muxer.FFmpeg{
			Binary: e.FFmpegBinary,
		},
	}, nil
}
