package selector

import (
	"sort"
	"strings"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const (
	Best            = "best"
	Worst           = "worst"
	BestUnfiltered  = "best-unfiltered"
	WorstUnfiltered = "worst-unfiltered"
)

type Options struct {
	// exclusion expressions applied to best and worst
	Excludes []string
}

// ranked reports whether variant takes part in best/worst ranking.
func ranked(v *media.Variant, total int) bool {
	if total == 1 || v.Bandwidth > 0 {
		return true
	}
	weight, _ := Weight(v.Name)
	return weight > 0
}

// less orders variants by bandwidth, then resolution, then name weight.
func less(a, b *media.Variant) bool {
	if a.Bandwidth != b.Bandwidth {
		return a.Bandwidth < b.Bandwidth
	}
	if a.Resolution.Height != b.Resolution.Height {
		return a.Resolution.Height < b.Resolution.Height
	}
	if a.Resolution.Width != b.Resolution.Width {
		return a.Resolution.Width < b.Resolution.Width
	}
	wa, _ := Weight(a.Name)
	wb, _ := Weight(b.Name)
	return wa < wb
}

// Sorted returns ranked variants in ascending order, with exclusion
// filters applied when filtered is set.
func Sorted(variants []*media.Variant, opts Options, filtered bool) ([]*media.Variant, error) {
	var filters []Filter
	if filtered {
		for _, expr := range opts.Excludes {
			f, err := ParseFilter(expr)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
	}

	out := make([]*media.Variant, 0, len(variants))
outer:
	for _, v := range variants {
		if !ranked(v, len(variants)) {
			continue
		}
		for _, keep := range filters {
			if !keep(v.Name) {
				continue outer
			}
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// Select resolves a quality token to an ordered list of eligible variants,
// best candidate first. Token is a variant name, a synonym or a comma
// separated list of those, where the first resolvable entry wins.
func Select(variants []*media.Variant, token string, opts Options) ([]*media.Variant, error) {
	for _, name := range strings.Split(token, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		selected, err := selectOne(variants, name, opts)
		if err != nil {
			return nil, err
		}
		if len(selected) > 0 {
			return selected, nil
		}
	}

	available := make([]string, 0, len(variants))
	for _, v := range variants {
		available = append(available, v.Name)
	}
	return nil, &media.NoStreamsAvailableError{Token: token, Available: available}
}

func selectOne(variants []*media.Variant, name string, opts Options) ([]*media.Variant, error) {
	switch name {
	case Best, Worst:
		sorted, err := Sorted(variants, opts, true)
		if err != nil {
			return nil, err
		}
		if name == Best {
			reverse(sorted)
		}
		return sorted, nil
	case BestUnfiltered, WorstUnfiltered:
		sorted, err := Sorted(variants, opts, false)
		if err != nil {
			return nil, err
		}
		if name == BestUnfiltered {
			reverse(sorted)
		}
		return sorted, nil
	}

	for _, v := range variants {
		if strings.EqualFold(v.Name, name) {
			return []*media.Variant{v}, nil
		}
	}
	return nil, nil
}

func reverse(variants []*media.Variant) {
	for i, j := 0, len(variants)-1; i < j; i, j = i+1, j-1 {
		variants[i], variants[j] = variants[j], variants[i]
	}
}
