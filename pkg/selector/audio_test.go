package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

func TestSelectAudio(t *testing.T) {
	en := &media.Variant{Name: "English", Language: "en", URI: "en.m3u8", AutoSelect: true}
	de := &media.Variant{Name: "Deutsch", Language: "de", URI: "de.m3u8", Default: true}
	fr := &media.Variant{Name: "Francais", Language: "fr", URI: "fr.m3u8"}
	muxed := &media.Variant{Name: "Muxed", Language: "es"}

	tests := []struct {
		name  string
		audio []*media.Variant
		opts  AudioOptions
		want  []*media.Variant
	}{
		{
			name:  "locale",
			audio: []*media.Variant{en, de, fr},
			opts:  AudioOptions{Locale: "fr_FR"},
			want:  []*media.Variant{fr},
		},
		{
			name:  "select list",
			audio: []*media.Variant{en, de, fr},
			opts:  AudioOptions{Locale: "fr", Select: []string{"de", "English"}},
			want:  []*media.Variant{en, de},
		},
		{
			name:  "wildcard",
			audio: []*media.Variant{en, de, muxed},
			opts:  AudioOptions{Select: []string{"*"}},
			want:  []*media.Variant{en, de},
		},
		{
			name:  "autoselect in default locale",
			audio: []*media.Variant{de, en},
			want:  []*media.Variant{en},
		},
		{
			name:  "default track",
			audio: []*media.Variant{fr, de},
			opts:  AudioOptions{Locale: "ja"},
			want:  []*media.Variant{de},
		},
		{
			name:  "first with uri",
			audio: []*media.Variant{muxed, fr},
			want:  []*media.Variant{fr},
		},
		{
			name:  "no external tracks",
			audio: []*media.Variant{muxed},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectAudio(&media.Variant{Name: "720p", Audio: tt.audio}, tt.opts)
			assert.Equal(t, tt.want, got)
		})
	}
}
