package hls

import (
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const (
	RenditionAudio     = "AUDIO"
	RenditionVideo     = "VIDEO"
	RenditionSubtitles = "SUBTITLES"
)

type StreamInfo struct {
	Bandwidth        int
	AverageBandwidth int
	ProgramID        string
	Codecs           []string
	Resolution       media.Resolution
	FrameRate        float64
	Audio            string
	Video            string
	Subtitles        string
}

// Rendition is an EXT-X-MEDIA entry.
type Rendition struct {
	Type       string
	GroupID    string
	Language   string
	Name       string
	URI        string
	Default    bool
	AutoSelect bool
	Forced     bool
}

type VariantStream struct {
	URI    string
	IFrame bool
	StreamInfo

	// renditions of groups referenced by this variant
	Media []Rendition
}

type Playlist struct {
	URL      string
	Version  int
	IsMaster bool

	// multivariant
	Variants   []VariantStream
	IFrames    []VariantStream
	Renditions []Rendition

	// media
	TargetDuration float64
	MediaSequence  int64
	EndList        bool
	PlaylistType   string
	IFramesOnly    bool
	Segments       []media.Segment
	DateRanges     []media.DateRange
}

// MediaPlaylist converts a parsed media playlist to the engine window type.
func (p *Playlist) MediaPlaylist() *media.MediaPlaylist {
	return &media.MediaPlaylist{
		URL:            p.URL,
		Segments:       p.Segments,
		TargetDuration: p.TargetDuration,
		MediaSequence:  p.MediaSequence,
		EndList:        p.EndList,
		PlaylistType:   p.PlaylistType,
		IFramesOnly:    p.IFramesOnly,
		DateRanges:     p.DateRanges,
	}
}
