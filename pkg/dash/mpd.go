package dash

import (
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

var durationRegex = regexp.MustCompile(`^(-)?P(?:(\d+(?:\.\d+)?)Y)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)W)?(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// Parse decodes a MPD document. Structural XML errors are reported as
// MalformedManifestError naming the byte offset and, when known, the element.
func Parse(r io.Reader, base string) (*MPD, error) {
	mpd := &MPD{}

	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(mpd); err != nil {
		mErr := &media.MalformedManifestError{URL: base, Err: err}

		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) {
			mErr.Line = syntaxErr.Line
		}

		var unmarshalErr xml.UnmarshalError
		if errors.As(err, &unmarshalErr) {
			mErr.Element = "MPD"
		}
		if errors.Is(err, io.EOF) {
			mErr.Reason = "empty document"
		}
		return nil, mErr
	}

	if len(mpd.Periods) == 0 {
		return nil, &media.MalformedManifestError{URL: base, Element: "Period", Reason: "manifest has no periods"}
	}

	mpd.URL = base
	return mpd, nil
}

func (m *MPD) Dynamic() bool {
	return str(m.Type) == TypeDynamic
}

func (m *MPD) MinimumUpdate() time.Duration {
	return ParseDuration(str(m.MinimumUpdatePeriod))
}

func (m *MPD) AvailabilityStart() time.Time {
	return parseTime(str(m.AvailabilityStartTime))
}

// ActivePeriod returns the period to play: the first one for static
// presentations, the last one for dynamic.
func (m *MPD) ActivePeriod() *Period {
	if len(m.Periods) == 0 {
		return nil
	}
	if m.Dynamic() {
		return m.Periods[len(m.Periods)-1]
	}
	return m.Periods[0]
}

// PeriodDuration returns duration of the period, derived from the
// presentation duration when the period does not declare one.
func (m *MPD) PeriodDuration(p *Period) time.Duration {
	if p == nil {
		return 0
	}
	if d := ParseDuration(str(p.Duration)); d > 0 {
		return d
	}
	total := ParseDuration(str(m.MediaPresentationDuration))
	if total <= 0 {
		return 0
	}
	return total - ParseDuration(str(p.Start))
}

// Representation finds representation by id in the active period.
func (m *MPD) Representation(id string) (*Period, *AdaptationSet, *Representation, bool) {
	period := m.ActivePeriod()
	if period == nil {
		return nil, nil, nil, false
	}
	for _, aset := range period.AdaptationSets {
		if aset == nil {
			continue
		}
		for _, rep := range aset.Representations {
			if rep != nil && str(rep.ID) == id {
				return period, aset, rep, true
			}
		}
	}
	return nil, nil, nil, false
}

// BaseURL resolves the chain of BaseURL elements down to the
// representation. Nil elements are skipped.
func (m *MPD) BaseURL(period *Period, aset *AdaptationSet, rep *Representation) string {
	base := m.URL
	base = resolveFirst(base, m.BaseURLs)
	if period != nil {
		base = resolveFirst(base, period.BaseURLs)
	}
	if aset != nil {
		base = resolveFirst(base, aset.BaseURLs)
	}
	if rep != nil {
		base = resolveFirst(base, rep.BaseURLs)
	}
	return base
}

func resolveFirst(base string, urls []BaseURL) string {
	if len(urls) == 0 {
		return base
	}
	return resolve(base, strings.TrimSpace(urls[0].Value))
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// ParseDuration parses an ISO 8601 duration like PT1H2M3.5S. Invalid or
// empty values return zero. Years and months are approximated.
func ParseDuration(s string) time.Duration {
	m := durationRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || s == "P" || s == "PT" {
		return 0
	}

	units := []time.Duration{
		365 * 24 * time.Hour,
		30 * 24 * time.Hour,
		7 * 24 * time.Hour,
		24 * time.Hour,
		time.Hour,
		time.Minute,
		time.Second,
	}

	var total float64
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i+2], 64)
		if err != nil {
			return 0
		}
		total += v * float64(unit)
	}

	if m[1] == "-" {
		total = -total
	}
	return time.Duration(total)
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
