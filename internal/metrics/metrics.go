package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentsTotal counts segments by stream kind and outcome
	// (fetched, failed, discarded, written).
	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlink_segments_total",
		Help: "Total number of processed segments by kind and result",
	}, []string{"kind", "result"})

	// SegmentFetchDuration tracks time spent downloading one segment,
	// including retries.
	SegmentFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamlink_segment_fetch_duration_seconds",
		Help:    "Time taken to fetch a segment including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"kind"})

	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlink_bytes_written_total",
		Help: "Total number of bytes written to sinks",
	}, []string{"kind"})

	PlaylistReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlink_playlist_reloads_total",
		Help: "Total number of playlist reloads by result",
	}, []string{"kind", "result"})

	DecryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamlink_decrypt_failures_total",
		Help: "Total number of segments that could not be decrypted",
	}, []string{"kind"})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamlink_active_sessions",
		Help: "Number of running stream sessions",
	}, []string{"kind"})
)

// ObserveSegmentFetched records a successfully fetched segment.
func ObserveSegmentFetched(kind string, duration time.Duration) {
	SegmentsTotal.WithLabelValues(kind, "fetched").Inc()
	SegmentFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func IncSegmentFailed(kind string) {
	SegmentsTotal.WithLabelValues(kind, "failed").Inc()
}

func IncSegmentDiscarded(kind string) {
	SegmentsTotal.WithLabelValues(kind, "discarded").Inc()
}

// ObserveSegmentWritten records a segment written to the sink.
func ObserveSegmentWritten(kind string, n int) {
	SegmentsTotal.WithLabelValues(kind, "written").Inc()
	BytesWritten.WithLabelValues(kind).Add(float64(n))
}

// IncPlaylistReload records a playlist reload outcome.
func IncPlaylistReload(kind string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	PlaylistReloads.WithLabelValues(kind, result).Inc()
}

func IncDecryptFailure(kind string) {
	DecryptFailures.WithLabelValues(kind).Inc()
}

// SessionStarted marks a session as running and returns a func marking it
// as finished.
func SessionStarted(kind string) func() {
	gauge := ActiveSessions.WithLabelValues(kind)
	gauge.Inc()
	return gauge.Dec
}
