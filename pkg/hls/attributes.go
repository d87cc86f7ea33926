package hls

import (
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

var (
	resolutionRegex = regexp.MustCompile(`^(\d+)x(\d+)$`)
	byteRangeRegex  = regexp.MustCompile(`^(\d+)(?:@(\d+))?$`)
)

// parseAttributes parses an attribute list like
// BANDWIDTH=1280000,CODECS="avc1.4d401f,mp4a.40.2",RESOLUTION=1280x720.
// Quoted values keep commas. Malformed pairs are skipped.
func parseAttributes(s string) map[string]string {
	attrs := map[string]string{}

	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t,")
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			break
		}

		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				// unterminated quote takes the rest of the line
				value, s = s[1:], ""
			} else {
				value, s = s[1:end+1], s[end+2:]
			}
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				value, s = s, ""
			} else {
				value, s = s[:end], s[end:]
			}
			value = strings.TrimSpace(value)
		}

		if key != "" {
			attrs[key] = value
		}
	}

	return attrs
}

func parseInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		// some servers send floats for integer attributes
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int(f)
	}
	return i
}

func parseInt64(s string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return i
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "YES")
}

func parseResolution(s string) media.Resolution {
	m := resolutionRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return media.Resolution{}
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return media.Resolution{Width: w, Height: h}
}

func parseCodecs(s string) []string {
	if s == "" {
		return nil
	}
	var codecs []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return codecs
}

// parseIV parses a hexadecimal IV, left padded to 16 bytes. Returns nil
// when invalid.
func parseIV(s string) []byte {
	s = strings.TrimSpace(s)
	if len(s) < 3 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return nil
	}

	s = s[2:]
	if len(s)%2 == 1 {
		s = "0" + s
	}

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) > 16 {
		return nil
	}

	iv := make([]byte, 16)
	copy(iv[16-len(raw):], raw)
	return iv
}

// parseByteRange parses "length[@offset]". Offset is nil when not present.
func parseByteRange(s string) (length int64, offset *int64, ok bool) {
	m := byteRangeRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, nil, false
	}

	length, _ = strconv.ParseInt(m[1], 10, 64)
	if m[2] != "" {
		o, _ := strconv.ParseInt(m[2], 10, 64)
		offset = &o
	}
	return length, offset, true
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999Z0700", "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseSeconds(s string) time.Duration {
	return time.Duration(parseFloat(s) * float64(time.Second))
}
