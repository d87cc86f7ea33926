package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oe-mirrors/streamlink-27/internal/config"
)

const master = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
720.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=640000,RESOLUTION=640x360
360.m3u8
`

const playlist = `#EXTM3U
#EXT-X-TARGETDURATION:1
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:1,
seg0.ts
#EXTINF:1,
seg1.ts
#EXTINF:1,
seg2.ts
#EXT-X-ENDLIST
`

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/master.m3u8":
			_, _ = w.Write([]byte(master))
		case r.URL.Path == "/720.m3u8", r.URL.Path == "/360.m3u8":
			_, _ = w.Write([]byte(playlist))
		case strings.HasSuffix(r.URL.Path, ".ts"):
			_, _ = w.Write([]byte("[" + strings.TrimPrefix(r.URL.Path, "/") + "]"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAPI(t *testing.T, rateLimit int) *httptest.Server {
	t.Helper()

	router := chi.NewRouter()
	New(&config.Engine{}, rateLimit).Mount(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func request(t *testing.T, base, path string, query url.Values) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(base + path + "?" + query.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestPing(t *testing.T) {
	api := newAPI(t, 0)

	resp, body := request(t, api.URL, "/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", body)
}

func TestStreams(t *testing.T) {
	upstream := newUpstream(t)
	api := newAPI(t, 0)

	resp, body := request(t, api.URL, "/api/streams", url.Values{"url": {upstream.URL + "/master.m3u8"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var names []string
	require.NoError(t, json.Unmarshal([]byte(body), &names))
	assert.Equal(t, []string{"360p", "720p"}, names)

	t.Run("missing url", func(t *testing.T) {
		resp, _ := request(t, api.URL, "/api/streams", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("upstream not found", func(t *testing.T) {
		resp, _ := request(t, api.URL, "/api/streams", url.Values{"url": {upstream.URL + "/missing.m3u8"}})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestStream(t *testing.T) {
	upstream := newUpstream(t)
	api := newAPI(t, 0)

	tests := []struct {
		name        string
		quality     string
		status      int
		contentType string
		body        string
	}{
		{
			name:        "named",
			quality:     "720p",
			status:      http.StatusOK,
			contentType: "video/MP2T",
			body:        "[seg0.ts][seg1.ts][seg2.ts]",
		},
		{
			name:        "default best",
			status:      http.StatusOK,
			contentType: "video/MP2T",
			body:        "[seg0.ts][seg1.ts][seg2.ts]",
		},
		{
			name:    "unknown quality",
			quality: "1080p",
			status:  http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := url.Values{"url": {upstream.URL + "/master.m3u8"}}
			if tt.quality != "" {
				query.Set("quality", tt.quality)
			}

			resp, body := request(t, api.URL, "/api/stream", query)
			assert.Equal(t, tt.status, resp.StatusCode, body)
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestRateLimit(t *testing.T) {
	api := newAPI(t, 1)

	resp, _ := request(t, api.URL, "/api/streams", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = request(t, api.URL, "/api/streams", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// outside of the api group
	resp, _ = request(t, api.URL, "/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
