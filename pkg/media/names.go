package media

import (
	"fmt"
	"strconv"
	"strings"
)

// BitrateName formats bandwidth in kilobits, e.g. 1280000 -> "1280k".
func BitrateName(bandwidth int) string {
	if bandwidth <= 0 {
		return ""
	}
	if bandwidth >= 1000 {
		return fmt.Sprintf("%dk", bandwidth/1000)
	}
	return strconv.FormatFloat(float64(bandwidth)/1000, 'f', -1, 64) + "k"
}

// PixelsName formats resolution height, e.g. 1280x720 -> "720p".
func PixelsName(res Resolution) string {
	if res.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dp", res.Height)
}

// UniqueName returns name or its "_alt"/"_alt2" form if name is already
// taken. Returns false when too many alternatives exist.
func UniqueName(name string, taken map[string]bool) (string, bool) {
	if !taken[name] {
		return name, true
	}

	name += "_alt"
	alts := 0
	for n := range taken {
		if strings.HasPrefix(n, name) {
			alts++
		}
	}

	switch {
	case alts >= 2:
		return "", false
	case alts > 0:
		name += strconv.Itoa(alts + 1)
	}
	return name, true
}

