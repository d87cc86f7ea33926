package dash

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

func (a *AdaptationSet) contentType() string {
	if a == nil {
		return ""
	}
	if ct := str(a.ContentType); ct != "" {
		return ct
	}
	mime := str(a.MimeType)
	if mime == "" {
		for _, rep := range a.Representations {
			if rep != nil && rep.MimeType != nil {
				mime = *rep.MimeType
				break
			}
		}
	}
	if i := strings.IndexByte(mime, '/'); i > 0 {
		return mime[:i]
	}
	return mime
}

func (a *AdaptationSet) protected() bool {
	return a != nil && len(a.ContentProtections) > 0
}

func frameRate(s string) float64 {
	if s == "" {
		return 0
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (m *MPD) variant(aset *AdaptationSet, rep *Representation) *media.Variant {
	v := &media.Variant{
		ID:        str(rep.ID),
		Bandwidth: intOr(rep.Bandwidth, 0),
		Resolution: media.Resolution{
			Width:  intOr(rep.Width, intOr(aset.Width, 0)),
			Height: intOr(rep.Height, intOr(aset.Height, 0)),
		},
		FrameRate: frameRate(firstNonEmpty(str(rep.FrameRate), str(aset.FrameRate))),
		Language:  str(aset.Lang),
		URI:       m.URL,
		Encrypted: aset.protected() || len(rep.ContentProtections) > 0,
	}
	if codecs := firstNonEmpty(str(rep.Codecs), str(aset.Codecs)); codecs != "" {
		v.Codecs = strings.Split(codecs, ",")
	}
	for _, role := range aset.Roles {
		if role != nil && str(role.Value) == "main" {
			v.Default = true
		}
	}
	return v
}

// Manifest names the representations of the active period. Video
// representations become variants named "{height}p" or "{bandwidth}k";
// audio representations are attached to every video variant. When one
// language is offered in several bitrates a variant per pair is created,
// named "{video}+a{bitrate}k". Audio-only manifests expose audio
// representations as variants.
func Manifest(mpd *MPD) *media.Manifest {
	m := &media.Manifest{
		URL:     mpd.URL,
		BaseURL: mpd.URL,
		Live:    mpd.Dynamic(),
	}

	period := mpd.ActivePeriod()
	if period == nil {
		return m
	}

	var video, audio []*media.Variant
	for _, aset := range period.AdaptationSets {
		if aset == nil {
			continue
		}
		ct := aset.contentType()
		for _, rep := range aset.Representations {
			if rep == nil {
				continue
			}
			switch {
			case ct == "video" || (ct == "" && (rep.Height != nil || aset.Height != nil)):
				video = append(video, mpd.variant(aset, rep))
			case ct == "audio":
				a := mpd.variant(aset, rep)
				a.Name = firstNonEmpty(a.Language, a.ID)
				audio = append(audio, a)
			}
		}
	}

	m.Audio = audio

	// several bitrates for one language
	perLang := map[string]int{}
	for _, a := range audio {
		perLang[a.Language]++
	}
	pairs := false
	for _, n := range perLang {
		if n > 1 {
			pairs = true
		}
	}

	taken := map[string]bool{}
	add := func(v *media.Variant, name string) {
		name, ok := media.UniqueName(name, taken)
		if !ok {
			return
		}
		taken[name] = true
		v.Name = name
		m.Variants = append(m.Variants, v)
	}

	if len(video) == 0 {
		sort.SliceStable(audio, func(i, j int) bool { return audio[i].Bandwidth > audio[j].Bandwidth })
		for _, a := range audio {
			v := *a
			add(&v, "a"+media.BitrateName(a.Bandwidth))
		}
		return m
	}

	for _, v := range video {
		name := firstNonEmpty(media.PixelsName(v.Resolution), media.BitrateName(v.Bandwidth), v.ID)
		if !pairs {
			v.Audio = audio
			add(v, name)
			continue
		}
		for _, a := range audio {
			pair := *v
			pair.Audio = []*media.Variant{a}
			add(&pair, fmt.Sprintf("%s+a%s", name, media.BitrateName(a.Bandwidth)))
		}
	}

	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
