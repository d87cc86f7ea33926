package selector

import (
	"golang.org/x/text/language"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

type AudioOptions struct {
	// preferred locale, e.g. "en_US" or "de"; empty when not configured
	Locale string
	// explicit languages or names, "*" selects every track
	Select []string
}

func equivalent(locale language.Tag, lang string) bool {
	if lang == "" {
		return false
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	lb, _ := locale.Base()
	tb, _ := tag.Base()
	return lb == tb
}

// SelectAudio picks external audio tracks for a variant. Tracks named by
// the select list or matching the configured locale come first, then the
// auto-selectable track in the system language, then the DEFAULT track and
// finally the first track with a URI.
func SelectAudio(video *media.Variant, opts AudioOptions) []*media.Variant {
	var tracks []*media.Variant
	for _, a := range video.Audio {
		if a.URI != "" {
			tracks = append(tracks, a)
		}
	}
	if len(tracks) == 0 {
		return nil
	}

	explicit := opts.Locale != ""
	locale := language.English
	if explicit {
		if tag, err := language.Parse(opts.Locale); err == nil {
			locale = tag
		} else {
			explicit = false
		}
	}

	var preferred, defaults, fallback []*media.Variant
	for _, a := range tracks {
		if fallback == nil && a.Default {
			fallback = []*media.Variant{a}
		}
		if defaults == nil && a.AutoSelect && equivalent(locale, a.Language) {
			defaults = []*media.Variant{a}
		}
		if selected(opts.Select, a) {
			preferred = append(preferred, a)
		}
	}

	// best locale match among all tracks when no explicit list applies
	if len(preferred) == 0 && explicit {
		if a := bestMatch(locale, tracks); a != nil {
			preferred = []*media.Variant{a}
		}
	}

	switch {
	case len(preferred) > 0:
		return preferred
	case defaults != nil:
		return defaults
	case fallback != nil:
		return fallback
	}
	return tracks[:1]
}

func selected(list []string, a *media.Variant) bool {
	for _, s := range list {
		if s == "*" || (s != "" && (s == a.Language || s == a.Name)) {
			return true
		}
	}
	return false
}

func bestMatch(locale language.Tag, tracks []*media.Variant) *media.Variant {
	tags := make([]language.Tag, 0, len(tracks))
	index := make([]*media.Variant, 0, len(tracks))
	for _, a := range tracks {
		tag, err := language.Parse(a.Language)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		index = append(index, a)
	}
	if len(tags) == 0 {
		return nil
	}

	matcher := language.NewMatcher(tags)
	_, i, confidence := matcher.Match(locale)
	if confidence < language.High {
		return nil
	}

	// prefer the DEFAULT track among equivalent languages
	match := index[i]
	if !match.Default {
		for _, a := range index {
			if a.Default && equivalent(locale, a.Language) {
				return a
			}
		}
	}
	return match
}
