package hls

import (
	"strings"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

var adTitles = []string{"amazon", "advertisement"}

// IsAdSegment reports whether segment lies in an ad date range of the
// playlist window, or carries an ad title.
func IsAdSegment(pl *media.MediaPlaylist, segment media.Segment) bool {
	if segment.Init {
		return false
	}

	title := strings.ToLower(segment.Title)
	for _, t := range adTitles {
		if title == t || strings.HasPrefix(title, t+"|") {
			return true
		}
	}

	if pl == nil || segment.ProgramDateTime.IsZero() {
		return false
	}

	for _, dr := range pl.DateRanges {
		if dr.IsAd() && dr.Contains(segment.ProgramDateTime) {
			return true
		}
	}

	return false
}
