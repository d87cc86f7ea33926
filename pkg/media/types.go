package media

import (
	"fmt"
	"strings"
	"time"
)

const (
	MethodNone      = "NONE"
	MethodAES128    = "AES-128"
	MethodSampleAES = "SAMPLE-AES"
)

type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

func (r Resolution) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Manifest is the root parse result of a multivariant HLS playlist or a DASH
// MPD. A reload always produces a new Manifest.
type Manifest struct {
	URL      string
	BaseURL  string
	Live     bool
	Variants []*Variant
	Audio    []*Variant
}

// Variant returns the variant with given display name.
func (m *Manifest) Variant(name string) (*Variant, bool) {
	for _, v := range m.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Names returns variant display names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Variants))
	for _, v := range m.Variants {
		names = append(names, v.Name)
	}
	return names
}

type Variant struct {
	Name       string
	ID         string // DASH representation id
	Bandwidth  int // bits per second
	Resolution Resolution
	FrameRate  float64
	Codecs     []string

	// audio rendition metadata
	AudioGroup string
	Language   string
	Default    bool
	AutoSelect bool

	// reference to the media playlist (HLS) or representation (DASH)
	URI    string
	Inline string

	// external audio tracks usable with this variant
	Audio []*Variant

	Encrypted bool
}

func (v *Variant) String() string {
	parts := []string{v.Name}
	if v.Bandwidth > 0 {
		parts = append(parts, fmt.Sprintf("bw=%d", v.Bandwidth))
	}
	if !v.Resolution.IsZero() {
		parts = append(parts, v.Resolution.String())
	}
	if v.Language != "" {
		parts = append(parts, "lang="+v.Language)
	}
	return strings.Join(parts, " ")
}

type ByteRange struct {
	Offset int64
	Length int64
}

// Header returns value for the HTTP Range request header.
func (b ByteRange) Header() string {
	if b.Length <= 0 {
		return fmt.Sprintf("bytes=%d-", b.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", b.Offset, b.Offset+b.Length-1)
}

func (b ByteRange) End() int64 {
	return b.Offset + b.Length
}

type EncryptionKey struct {
	Method    string
	URI       string
	IV        []byte // nil when derived from sequence number
	KeyFormat string
}

func (k *EncryptionKey) Encrypted() bool {
	return k != nil && k.Method != "" && k.Method != MethodNone
}

type Identity struct {
	Sequence int64
	URI      string
}

func (i Identity) String() string {
	return fmt.Sprintf("%d:%s", i.Sequence, i.URI)
}

type Segment struct {
	Sequence        int64
	URI             string
	ByteRange       *ByteRange
	Duration        float64 // seconds
	Discontinuity   bool
	Key             *EncryptionKey
	Discard         bool
	Title           string
	ProgramDateTime time.Time
	Init            bool      // initialization section (EXT-X-MAP, DASH init)
	AvailableAt     time.Time // zero when available immediately
}

// Identity returns the deduplication key of the segment. Initialization
// sections are identified by URI and range only.
func (s Segment) Identity() Identity {
	id := Identity{Sequence: s.Sequence, URI: s.URI}
	if s.Init {
		id.Sequence = -1
	}
	if s.ByteRange != nil {
		id.URI = fmt.Sprintf("%s@%d", s.URI, s.ByteRange.Offset)
	}
	return id
}

func (s Segment) DurationTime() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}

// MediaPlaylist is one parsed window of segments. For live streams every
// reload produces a new window.
type MediaPlaylist struct {
	URL            string
	Segments       []Segment
	TargetDuration float64
	MediaSequence  int64
	EndList        bool
	PlaylistType   string
	IFramesOnly    bool
	DateRanges     []DateRange
}

func (p *MediaPlaylist) Live() bool {
	return !p.EndList && p.PlaylistType != "VOD"
}

// Sequences returns sequence numbers of the window, used to detect
// unchanged reloads.
func (p *MediaPlaylist) Sequences() []int64 {
	seqs := make([]int64, 0, len(p.Segments))
	for _, s := range p.Segments {
		seqs = append(seqs, s.Sequence)
	}
	return seqs
}

type DateRange struct {
	ID              string
	Class           string
	StartDate       time.Time
	EndDate         time.Time
	Duration        time.Duration
	PlannedDuration time.Duration
	Attributes      map[string]string
}

// End returns end of the window, falling back to duration and planned
// duration. Zero when unknown.
func (d DateRange) End() time.Time {
	switch {
	case !d.EndDate.IsZero():
		return d.EndDate
	case d.Duration > 0:
		return d.StartDate.Add(d.Duration)
	case d.PlannedDuration > 0:
		return d.StartDate.Add(d.PlannedDuration)
	}
	return time.Time{}
}

func (d DateRange) Contains(t time.Time) bool {
	if t.IsZero() || d.StartDate.IsZero() || t.Before(d.StartDate) {
		return false
	}
	end := d.End()
	return end.IsZero() || t.Before(end)
}

func (d DateRange) IsAd() bool {
	class := strings.ToLower(d.Class)
	if strings.Contains(class, "twitch-stitched-ad") || class == "ad" || strings.HasSuffix(class, "-ad") {
		return true
	}
	if strings.HasPrefix(strings.ToLower(d.ID), "stitched-ad-") {
		return true
	}
	for key := range d.Attributes {
		switch {
		case key == "SCTE35-OUT", strings.HasPrefix(key, "X-AD-"), strings.HasPrefix(key, "X-TV-TWITCH-AD-"):
			return true
		}
	}
	return false
}
