package dash

import "encoding/xml"

const (
	TypeStatic  = "static"
	TypeDynamic = "dynamic"
)

// MPD mirrors the subset of the MPEG-DASH schema the engine needs. Optional
// attributes are pointers so that absence is distinguishable from zero.
type MPD struct {
	XMLName                    xml.Name  `xml:"MPD"`
	Type                       *string   `xml:"type,attr"`
	MinimumUpdatePeriod        *string   `xml:"minimumUpdatePeriod,attr"`
	MediaPresentationDuration  *string   `xml:"mediaPresentationDuration,attr"`
	AvailabilityStartTime      *string   `xml:"availabilityStartTime,attr"`
	PublishTime                *string   `xml:"publishTime,attr"`
	TimeShiftBufferDepth       *string   `xml:"timeShiftBufferDepth,attr"`
	SuggestedPresentationDelay *string   `xml:"suggestedPresentationDelay,attr"`
	BaseURLs                   []BaseURL `xml:"BaseURL"`
	Periods                    []*Period `xml:"Period"`

	// url the manifest was loaded from
	URL string `xml:"-"`
}

type BaseURL struct {
	Value string `xml:",chardata"`
}

type Period struct {
	ID              *string          `xml:"id,attr"`
	Start           *string          `xml:"start,attr"`
	Duration        *string          `xml:"duration,attr"`
	BaseURLs        []BaseURL        `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	SegmentList     *SegmentList     `xml:"SegmentList"`
	SegmentBase     *SegmentBase     `xml:"SegmentBase"`
	AdaptationSets  []*AdaptationSet `xml:"AdaptationSet"`
}

type AdaptationSet struct {
	ID                 *string              `xml:"id,attr"`
	MimeType           *string              `xml:"mimeType,attr"`
	ContentType        *string              `xml:"contentType,attr"`
	Lang               *string              `xml:"lang,attr"`
	Codecs             *string              `xml:"codecs,attr"`
	Width              *int                 `xml:"width,attr"`
	Height             *int                 `xml:"height,attr"`
	FrameRate          *string              `xml:"frameRate,attr"`
	BaseURLs           []BaseURL            `xml:"BaseURL"`
	SegmentTemplate    *SegmentTemplate     `xml:"SegmentTemplate"`
	SegmentList        *SegmentList         `xml:"SegmentList"`
	SegmentBase        *SegmentBase         `xml:"SegmentBase"`
	ContentProtections []*ContentProtection `xml:"ContentProtection"`
	Roles              []*Descriptor        `xml:"Role"`
	Representations    []*Representation    `xml:"Representation"`
}

type Representation struct {
	ID                 *string              `xml:"id,attr"`
	Bandwidth          *int                 `xml:"bandwidth,attr"`
	Width              *int                 `xml:"width,attr"`
	Height             *int                 `xml:"height,attr"`
	FrameRate          *string              `xml:"frameRate,attr"`
	Codecs             *string              `xml:"codecs,attr"`
	MimeType           *string              `xml:"mimeType,attr"`
	BaseURLs           []BaseURL            `xml:"BaseURL"`
	SegmentTemplate    *SegmentTemplate     `xml:"SegmentTemplate"`
	SegmentList        *SegmentList         `xml:"SegmentList"`
	SegmentBase        *SegmentBase         `xml:"SegmentBase"`
	ContentProtections []*ContentProtection `xml:"ContentProtection"`
}

type SegmentTemplate struct {
	Media                  *string          `xml:"media,attr"`
	Initialization         *string          `xml:"initialization,attr"`
	Timescale              *int64           `xml:"timescale,attr"`
	Duration               *int64           `xml:"duration,attr"`
	StartNumber            *int64           `xml:"startNumber,attr"`
	PresentationTimeOffset *int64           `xml:"presentationTimeOffset,attr"`
	SegmentTimeline        *SegmentTimeline `xml:"SegmentTimeline"`
}

type SegmentTimeline struct {
	Segments []*TimelineSegment `xml:"S"`
}

// TimelineSegment is a SegmentTimeline S element. Every attribute is
// optional.
type TimelineSegment struct {
	StartTime   *int64 `xml:"t,attr"`
	Duration    *int64 `xml:"d,attr"`
	RepeatCount *int64 `xml:"r,attr"`
}

type SegmentList struct {
	Timescale      *int64        `xml:"timescale,attr"`
	Duration       *int64        `xml:"duration,attr"`
	StartNumber    *int64        `xml:"startNumber,attr"`
	Initialization *URL          `xml:"Initialization"`
	SegmentURLs    []*SegmentURL `xml:"SegmentURL"`
}

type SegmentBase struct {
	Timescale      *int64  `xml:"timescale,attr"`
	IndexRange     *string `xml:"indexRange,attr"`
	Initialization *URL    `xml:"Initialization"`
}

type URL struct {
	SourceURL *string `xml:"sourceURL,attr"`
	Range     *string `xml:"range,attr"`
}

type SegmentURL struct {
	Media      *string `xml:"media,attr"`
	MediaRange *string `xml:"mediaRange,attr"`
}

type ContentProtection struct {
	SchemeIDURI *string `xml:"schemeIdUri,attr"`
	Value       *string `xml:"value,attr"`
}

type Descriptor struct {
	SchemeIDURI *string `xml:"schemeIdUri,attr"`
	Value       *string `xml:"value,attr"`
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOr(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}

func int64Or(i *int64, def int64) int64 {
	if i == nil {
		return def
	}
	return *i
}
