package segmented

import (
	"context"
	"net/http"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

type Config struct {
	SegmentAttempts int           // total attempts per segment request
	Threads         int           // concurrent segment fetches
	SegmentTimeout  time.Duration // timeout of a single segment request
	MaxInFlight     int           // segments held awaiting in-order delivery
	RequestRate     float64       // segment requests per second, 0 is unlimited

	ReloadFallback         time.Duration
	ReloadTime             string // "", "segment", "live-edge" or number of seconds
	PlaylistReloadAttempts int    // consecutive failed reloads before giving up
	LiveEdge               int
	LiveRestart            bool
	StreamTimeout          time.Duration // live stream without new segments
	MaxEmptyReloads        int           // 0 derives the budget from StreamTimeout

	StartOffset   time.Duration
	DurationLimit time.Duration

	FailFast                bool
	DecryptFailureThreshold int

	RingBufferSize int
}

func (c Config) withDefaultValues() Config {
	if c.SegmentAttempts <= 0 {
		c.SegmentAttempts = 3
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	if c.SegmentTimeout == 0 {
		c.SegmentTimeout = 10 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 20
	}
	if c.ReloadFallback == 0 {
		c.ReloadFallback = 6 * time.Second
	}
	if c.PlaylistReloadAttempts <= 0 {
		c.PlaylistReloadAttempts = 3
	}
	if c.LiveEdge <= 0 {
		c.LiveEdge = 3
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 60 * time.Second
	}
	if c.DecryptFailureThreshold <= 0 {
		c.DecryptFailureThreshold = 5
	}
	if c.RingBufferSize <= 0 {
		c.RingBufferSize = 16 * 1024 * 1024
	}
	return c
}

// Loader produces a new window of the played media playlist on each call.
type Loader interface {
	Load(ctx context.Context) (*media.MediaPlaylist, error)
}

// Reloader is implemented by loaders that schedule their own reloads.
type Reloader interface {
	NextReload(changed bool) time.Duration
}

// DiscardFunc reports whether a segment must be fetched but not written.
type DiscardFunc func(pl *media.MediaPlaylist, seg media.Segment) bool

type Options struct {
	Client  *http.Client
	Discard DiscardFunc
	Kind    string // stream kind used in logs and metrics
}
