package match

import (
	"log"
	"strings"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/discovery"
)

// Owned is a matched part attributed to a requested identifier, keyed by the
// identifier the catalog returned it under.
type Owned struct {
	FoundMPN string
	Part     catalog.Part
}

// MergeOptions controls attribution behavior.
type MergeOptions struct {
	// PrefixFallback enables a heuristic second pass: a returned identifier
	// with no exact variant owner is attributed to the first item holding a
	// variant that is a prefix of it, or that it is a prefix of. Off by
	// default; identifiers sharing common prefixes can mis-attribute.
	PrefixFallback bool

	Logger *log.Logger
}

// Merge attributes every matched part to exactly one requested item, by
// variant-set membership of the identifier the catalog returned.
//
// Attribution is deterministic: an inverted index from variant to the first
// item that produced it is built once, so a variant shared by several items
// always resolves to the earliest one. The returned slice is positional with
// sets; items whose variants never matched get an empty list.
func Merge(sets []discovery.VariantSet, parts []catalog.Part, opts MergeOptions) [][]Owned {
	index := make(map[string]int)
	for i, set := range sets {
		for _, v := range set.Variants {
			if _, ok := index[v]; !ok {
				index[v] = i
			}
		}
	}

	out := make([][]Owned, len(sets))
	// position of a found identifier within out[owner], for replace-on-repeat.
	slot := make([]map[string]int, len(sets))

	for _, part := range parts {
		found := strings.TrimSpace(part.MPN)
		if found == "" {
			continue
		}

		owner, ok := index[found]
		if !ok && opts.PrefixFallback {
			owner, ok = prefixOwner(sets, found)
			if ok && opts.Logger != nil {
				opts.Logger.Printf("prefix fallback attribution: found=%q requested=%q", found, sets[owner].Requested)
			}
		}
		if !ok {
			continue
		}

		if slot[owner] == nil {
			slot[owner] = make(map[string]int)
		}
		if at, seen := slot[owner][found]; seen {
			out[owner][at] = Owned{FoundMPN: found, Part: part}
			continue
		}
		slot[owner][found] = len(out[owner])
		out[owner] = append(out[owner], Owned{FoundMPN: found, Part: part})
	}
	return out
}

func prefixOwner(sets []discovery.VariantSet, found string) (int, bool) {
	for i, set := range sets {
		for _, v := range set.Variants {
			if strings.HasPrefix(found, v) || strings.HasPrefix(v, found) {
				return i, true
			}
		}
	}
	return 0, false
}
