package hls

import (
	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const (
	NameKeyName    = "name"
	NameKeyPixels  = "pixels"
	NameKeyBitrate = "bitrate"
)

type NameOptions struct {
	NameKey    string // preferred name source
	NamePrefix string
}

// Manifest builds a manifest from a multivariant playlist. A media playlist
// yields a single variant named "live" or "vod".
func Manifest(pl *Playlist, opts NameOptions) *media.Manifest {
	m := &media.Manifest{
		URL:     pl.URL,
		BaseURL: pl.URL,
	}

	if !pl.IsMaster {
		name := "live"
		if !pl.MediaPlaylist().Live() {
			name = "vod"
		}
		m.Live = pl.MediaPlaylist().Live()
		m.Variants = []*media.Variant{{
			Name: opts.NamePrefix + name,
			URI:  pl.URL,
		}}
		return m
	}

	m.Live = true
	m.Variants = Variants(pl, opts)
	seen := map[string]bool{}
	for _, v := range m.Variants {
		for _, a := range v.Audio {
			if !seen[a.URI] {
				seen[a.URI] = true
				m.Audio = append(m.Audio, a)
			}
		}
	}
	return m
}

// Variants converts multivariant entries to named variants. I-frame
// variants and entries without any usable name are skipped.
func Variants(pl *Playlist, opts NameOptions) []*media.Variant {
	taken := map[string]bool{}
	variants := []*media.Variant{}

	for _, vs := range pl.Variants {
		if vs.IFrame {
			continue
		}

		names := map[string]string{
			NameKeyPixels:  media.PixelsName(vs.Resolution),
			NameKeyBitrate: media.BitrateName(vs.Bandwidth),
		}

		var audio []*media.Variant
		for _, r := range vs.Media {
			switch r.Type {
			case RenditionVideo:
				if r.Name != "" {
					names[NameKeyName] = r.Name
				}
			case RenditionAudio:
				// audio without uri is muxed into the variant
				if r.URI == "" {
					continue
				}
				audio = append(audio, &media.Variant{
					Name:       r.Name,
					AudioGroup: r.GroupID,
					Language:   r.Language,
					Default:    r.Default,
					AutoSelect: r.AutoSelect,
					URI:        r.URI,
				})
			}
		}

		name := firstNonEmpty(names[opts.NameKey], names[NameKeyName], names[NameKeyPixels], names[NameKeyBitrate])
		if name == "" {
			continue
		}
		name = opts.NamePrefix + name

		name, ok := media.UniqueName(name, taken)
		if !ok {
			continue
		}
		taken[name] = true

		variants = append(variants, &media.Variant{
			Name:       name,
			Bandwidth:  vs.Bandwidth,
			Resolution: vs.Resolution,
			FrameRate:  vs.FrameRate,
			Codecs:     vs.Codecs,
			AudioGroup: vs.StreamInfo.Audio,
			URI:        vs.URI,
			Audio:      audio,
		})
	}

	return variants
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
