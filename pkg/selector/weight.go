package selector

import (
	"fmt"
	"regexp"
	"strconv"
)

type Group string

const (
	GroupPixels  Group = "pixels"
	GroupBitrate Group = "bitrate"
	GroupNone    Group = "none"
)

const (
	bitrateWeightRatio = 2.8
	altWeightMod       = 0.01
)

var (
	weightRegex = regexp.MustCompile(`^(\d+)(k|p)?(\d+)?(\+)?(?:[a_](\d+)k)?(?:_(alt)(\d)?)?$`)
	filterRegex = regexp.MustCompile(`^(<=|>=|<|>)?([\w+]+)$`)
)

// named qualities used by some providers
var extraWeights = map[string]struct {
	weight float64
	group  Group
}{
	"live": {1080, "other"},
	"hd":   {1080, "tv"},
	"sd":   {576, "tv"},
	"ehq":  {720, "quality"},
	"hq":   {576, "quality"},
	"sq":   {360, "quality"},
}

// Weight ranks a variant name. Resolution names weigh their height (plus
// frame rate and bitrate classifiers), bitrate names their kilobits divided
// by 2.8; "_alt" names weigh slightly less than the original.
func Weight(name string) (float64, Group) {
	if extra, ok := extraWeights[name]; ok {
		return extra.weight, extra.group
	}

	m := weightRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, GroupNone
	}

	var weight float64
	if m[6] != "" {
		if m[7] != "" {
			alt, _ := strconv.Atoi(m[7])
			weight -= altWeightMod * float64(alt)
		} else {
			weight -= altWeightMod
		}
	}

	value, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "k":
		return weight + float64(value)/bitrateWeightRatio, GroupBitrate
	case "p":
		weight += float64(value)
		if m[3] != "" {
			fps, _ := strconv.Atoi(m[3])
			weight += float64(fps)
		}
		if m[4] == "+" {
			weight++
		}
		if m[5] != "" {
			bitrate, _ := strconv.Atoi(m[5])
			weight += float64(bitrate) / bitrateWeightRatio
		}
		return weight, GroupPixels
	}

	return 0, GroupNone
}

// Filter reports whether a variant name is kept by an exclusion expression.
type Filter func(name string) bool

// ParseFilter parses expressions like ">=720p", "<480p" or "1080p60". A name
// is excluded when it is in the same group as the value and the comparison
// holds; without operator equality is tested.
func ParseFilter(expr string) (Filter, error) {
	m := filterRegex.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("invalid filter expression: %q", expr)
	}

	op := m[1]
	filterWeight, filterGroup := Weight(m[2])

	return func(name string) bool {
		weight, group := Weight(name)
		if group != filterGroup {
			return true
		}

		switch op {
		case "<":
			return !(weight < filterWeight)
		case "<=":
			return !(weight <= filterWeight)
		case ">":
			return !(weight > filterWeight)
		case ">=":
			return !(weight >= filterWeight)
		}
		return weight != filterWeight
	}, nil
}
