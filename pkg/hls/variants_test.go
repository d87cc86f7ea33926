package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

func TestManifestVariants(t *testing.T) {
	input := `#EXTM3U
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="src",NAME="source"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",LANGUAGE="en",NAME="English",DEFAULT=YES,URI="en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",LANGUAGE="fr",NAME="Muxed"
#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080,VIDEO="src"
source.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720,AUDIO="aud"
720a.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720
720b.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=640000
audio_only.m3u8
#EXT-X-STREAM-INF:PROGRAM-ID=1
noname.m3u8
`

	pl, err := ParseString(input, base)
	require.NoError(t, err)

	m := Manifest(pl, NameOptions{})
	assert.True(t, m.Live)
	assert.Equal(t, []string{"source", "720p", "720p_alt", "640k"}, m.Names())

	v, ok := m.Variant("720p")
	require.True(t, ok)
	require.Len(t, v.Audio, 1)
	assert.Equal(t, "en", v.Audio[0].Language)
	assert.True(t, v.Audio[0].Default)
	assert.Equal(t, "http://example.com/live/en.m3u8", v.Audio[0].URI)
	assert.Len(t, m.Audio, 1)

	m = Manifest(pl, NameOptions{NameKey: NameKeyBitrate, NamePrefix: "hls_"})
	assert.Equal(t, []string{"hls_6000k", "hls_1280k", "hls_2560k", "hls_640k"}, m.Names())
}

func TestManifestMediaPlaylist(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		live  bool
	}{
		{
			name:  "live",
			input: "#EXTM3U\n#EXTINF:2,\na.ts\n",
			want:  "live",
			live:  true,
		},
		{
			name:  "vod",
			input: "#EXTM3U\n#EXTINF:2,\na.ts\n#EXT-X-ENDLIST\n",
			want:  "vod",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pl, err := ParseString(tt.input, base)
			require.NoError(t, err)

			m := Manifest(pl, NameOptions{})
			assert.Equal(t, []*media.Variant{{Name: tt.want, URI: base}}, m.Variants)
			assert.Equal(t, tt.live, m.Live)
		})
	}
}
