package dash

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

// upper bound of segments produced from a single timeline or template
const maxSegments = 100000

// live window length for number based templates when the manifest
// declares no time shift buffer
const defaultLiveWindow = 5

var (
	templateRegex = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(?:%0(\d+)d)?\$`)
	rangeRegex    = regexp.MustCompile(`^(\d+)-(\d+)$`)
)

// template is a SegmentTemplate with inherited values resolved.
type template struct {
	media          string
	initialization string
	timescale      int64
	duration       *int64
	startNumber    int64
	pto            int64
	timeline       *SegmentTimeline
}

// mergeTemplates resolves SegmentTemplate inheritance, from the most
// specific element to the least. Nil templates are skipped.
func mergeTemplates(templates ...*SegmentTemplate) *template {
	var t *template
	var hasStart bool
	for _, st := range templates {
		if st == nil {
			continue
		}
		if t == nil {
			t = &template{}
		}
		if t.media == "" && st.Media != nil {
			t.media = *st.Media
		}
		if t.initialization == "" && st.Initialization != nil {
			t.initialization = *st.Initialization
		}
		if t.timescale == 0 && st.Timescale != nil {
			t.timescale = *st.Timescale
		}
		if t.duration == nil && st.Duration != nil {
			t.duration = st.Duration
		}
		if !hasStart && st.StartNumber != nil {
			t.startNumber = *st.StartNumber
			hasStart = true
		}
		if t.pto == 0 && st.PresentationTimeOffset != nil {
			t.pto = *st.PresentationTimeOffset
		}
		if t.timeline == nil && st.SegmentTimeline != nil {
			t.timeline = st.SegmentTimeline
		}
	}
	if t == nil {
		return nil
	}
	if t.timescale <= 0 {
		t.timescale = 1
	}
	if !hasStart {
		t.startNumber = 1
	}
	return t
}

type templateVars struct {
	representationID string
	bandwidth        int
	number           int64
	time             int64
}

func expandTemplate(tmpl string, v templateVars) string {
	out := templateRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		m := templateRegex.FindStringSubmatch(match)

		var value string
		switch m[1] {
		case "RepresentationID":
			return v.representationID
		case "Number":
			value = strconv.FormatInt(v.number, 10)
		case "Bandwidth":
			value = strconv.Itoa(v.bandwidth)
		case "Time":
			value = strconv.FormatInt(v.time, 10)
		}

		if m[2] != "" {
			width, _ := strconv.Atoi(m[2])
			for len(value) < width {
				value = "0" + value
			}
		}
		return value
	})
	return strings.ReplaceAll(out, "$$", "$")
}

// SegmentOptions control how live windows are computed.
type SegmentOptions struct {
	Now func() time.Time
}

func (o SegmentOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Segments resolves concrete segments of a representation. Missing
// parents, templates and attributes are treated as absent.
func (m *MPD) Segments(period *Period, aset *AdaptationSet, rep *Representation, opts SegmentOptions) ([]media.Segment, error) {
	if rep == nil {
		return nil, &media.MalformedManifestError{URL: m.URL, Element: "Representation", Reason: "missing representation"}
	}

	var (
		periodTemplate *SegmentTemplate
		periodList     *SegmentList
		asetTemplate   *SegmentTemplate
		asetList       *SegmentList
	)
	if period != nil {
		periodTemplate, periodList = period.SegmentTemplate, period.SegmentList
	}
	if aset != nil {
		asetTemplate, asetList = aset.SegmentTemplate, aset.SegmentList
	}

	base := m.BaseURL(period, aset, rep)
	vars := templateVars{
		representationID: str(rep.ID),
		bandwidth:        intOr(rep.Bandwidth, 0),
	}

	if t := mergeTemplates(rep.SegmentTemplate, asetTemplate, periodTemplate); t != nil {
		return m.templateSegments(period, t, base, vars, opts)
	}

	if list := firstList(rep.SegmentList, asetList, periodList); list != nil {
		return listSegments(list, base), nil
	}

	// SegmentBase or plain BaseURL
	return []media.Segment{{
		Sequence: 1,
		URI:      base,
		Duration: m.PeriodDuration(period).Seconds(),
	}}, nil
}

func firstList(lists ...*SegmentList) *SegmentList {
	for _, l := range lists {
		if l != nil {
			return l
		}
	}
	return nil
}

func (m *MPD) templateSegments(period *Period, t *template, base string, vars templateVars, opts SegmentOptions) ([]media.Segment, error) {
	if t.media == "" {
		return nil, &media.MalformedManifestError{URL: m.URL, Element: "SegmentTemplate", Reason: "missing media attribute"}
	}

	var segments []media.Segment
	var err error

	switch {
	case t.timeline != nil:
		segments, err = m.timelineSegments(period, t, base, vars, opts)
	case t.duration != nil && *t.duration > 0:
		segments, err = m.numberSegments(period, t, base, vars, opts)
	default:
		// template without timing information addresses one segment
		vars.number = t.startNumber
		segments = []media.Segment{{
			Sequence: t.startNumber,
			URI:      resolve(base, expandTemplate(t.media, vars)),
		}}
	}
	if err != nil {
		return nil, err
	}

	if t.initialization != "" && len(segments) > 0 {
		section := media.Segment{
			Sequence: segments[0].Sequence,
			URI:      resolve(base, expandTemplate(t.initialization, vars)),
			Init:     true,
		}
		segments = append([]media.Segment{section}, segments...)
	}

	return segments, nil
}

// timelineSegments expands SegmentTimeline entries. An entry without t
// continues from the end of the previous one, without d it uses the
// template duration or zero, without r it is not repeated. A negative r
// repeats until the next entry, the period end or the live edge.
func (m *MPD) timelineSegments(period *Period, t *template, base string, vars templateVars, opts SegmentOptions) ([]media.Segment, error) {
	entries := t.timeline.Segments

	var end int64 = math.MaxInt64
	if d := m.PeriodDuration(period); d > 0 && !m.Dynamic() {
		end = t.pto + int64(d.Seconds()*float64(t.timescale))
	}
	if m.Dynamic() {
		if start := m.AvailabilityStart(); !start.IsZero() {
			var periodStart time.Duration
			if period != nil {
				periodStart = ParseDuration(str(period.Start))
			}
			elapsed := opts.now().Sub(start.Add(periodStart))
			end = t.pto + int64(elapsed.Seconds()*float64(t.timescale))
		}
	}

	var segments []media.Segment
	var current int64
	number := t.startNumber

	for i, s := range entries {
		if s == nil {
			continue
		}
		if s.StartTime != nil {
			current = *s.StartTime
		}

		duration := int64Or(s.Duration, 0)
		if s.Duration == nil && t.duration != nil {
			duration = *t.duration
		}

		repeat := int64Or(s.RepeatCount, 0)
		if repeat < 0 {
			limit := end
			if i+1 < len(entries) && entries[i+1] != nil && entries[i+1].StartTime != nil {
				limit = *entries[i+1].StartTime
			}
			repeat = 0
			if duration > 0 && limit != math.MaxInt64 {
				repeat = (limit-current)/duration - 1
			}
			if repeat < 0 {
				repeat = 0
			}
		}

		for r := int64(0); r <= repeat; r++ {
			if len(segments) >= maxSegments {
				return nil, &media.MalformedManifestError{URL: m.URL, Element: "SegmentTimeline", Reason: "too many segments"}
			}

			vars.number = number
			vars.time = current
			segments = append(segments, media.Segment{
				Sequence: number,
				URI:      resolve(base, expandTemplate(t.media, vars)),
				Duration: float64(duration) / float64(t.timescale),
			})

			current += duration
			number++
		}
	}

	return segments, nil
}

// numberSegments addresses segments by $Number$ with a fixed duration.
func (m *MPD) numberSegments(period *Period, t *template, base string, vars templateVars, opts SegmentOptions) ([]media.Segment, error) {
	segDuration := time.Duration(float64(*t.duration) / float64(t.timescale) * float64(time.Second))
	if segDuration <= 0 {
		return nil, nil
	}

	first, count := t.startNumber, int64(0)
	var availableFrom time.Time

	if !m.Dynamic() {
		total := m.PeriodDuration(period)
		count = int64(math.Ceil(float64(total) / float64(segDuration)))
	} else {
		start := m.AvailabilityStart()
		if start.IsZero() {
			return nil, &media.MalformedManifestError{URL: m.URL, Element: "MPD", Reason: "dynamic manifest without availabilityStartTime"}
		}
		if period != nil {
			start = start.Add(ParseDuration(str(period.Start)))
		}

		elapsed := opts.now().Sub(start)
		available := int64(elapsed / segDuration)
		if available <= 0 {
			return nil, nil
		}

		window := int64(defaultLiveWindow)
		if depth := ParseDuration(str(m.TimeShiftBufferDepth)); depth > 0 {
			window = int64(depth / segDuration)
		}
		if window > available {
			window = available
		}
		if window < 1 {
			window = 1
		}

		first = t.startNumber + available - window
		count = window
		availableFrom = start
	}

	if count > maxSegments {
		return nil, &media.MalformedManifestError{URL: m.URL, Element: "SegmentTemplate", Reason: "too many segments"}
	}

	segments := make([]media.Segment, 0, count)
	for n := first; n < first+count; n++ {
		vars.number = n
		vars.time = (n - t.startNumber) * *t.duration
		segment := media.Segment{
			Sequence: n,
			URI:      resolve(base, expandTemplate(t.media, vars)),
			Duration: segDuration.Seconds(),
		}
		if !availableFrom.IsZero() {
			segment.AvailableAt = availableFrom.Add(time.Duration(n-t.startNumber+1) * segDuration)
		}
		segments = append(segments, segment)
	}

	return segments, nil
}

func listSegments(list *SegmentList, base string) []media.Segment {
	timescale := int64Or(list.Timescale, 1)
	if timescale <= 0 {
		timescale = 1
	}
	duration := float64(int64Or(list.Duration, 0)) / float64(timescale)
	number := int64Or(list.StartNumber, 1)

	var segments []media.Segment
	if list.Initialization != nil {
		section := media.Segment{
			Sequence:  number,
			URI:       base,
			Init:      true,
			ByteRange: parseRange(str(list.Initialization.Range)),
		}
		if src := str(list.Initialization.SourceURL); src != "" {
			section.URI = resolve(base, src)
		}
		segments = append(segments, section)
	}

	for _, su := range list.SegmentURLs {
		if su == nil {
			continue
		}
		segment := media.Segment{
			Sequence:  number,
			URI:       base,
			Duration:  duration,
			ByteRange: parseRange(str(su.MediaRange)),
		}
		if src := str(su.Media); src != "" {
			segment.URI = resolve(base, src)
		}
		segments = append(segments, segment)
		number++
	}

	return segments
}

// parseRange parses a "first-last" byte range. Nil when invalid.
func parseRange(s string) *media.ByteRange {
	m := rangeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	first, _ := strconv.ParseInt(m[1], 10, 64)
	last, _ := strconv.ParseInt(m[2], 10, 64)
	if last < first {
		return nil
	}
	return &media.ByteRange{Offset: first, Length: last - first + 1}
}
