// Package discovery finds catalog-recognized name variants for requested
// identifiers via partial-text search.
package discovery

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
	"golang.org/x/time/rate"
)

// Searcher is the catalog surface discovery needs.
type Searcher interface {
	Search(ctx context.Context, q string, limit int, currency string) ([]catalog.SearchHit, error)
}

// VariantSet holds the ordered variants discovered for one requested
// identifier. The requested identifier is always the first member.
type VariantSet struct {
	Requested string
	Variants  []string
}

// Contains reports whether v is a member of the set.
func (s VariantSet) Contains(v string) bool {
	for _, variant := range s.Variants {
		if variant == v {
			return true
		}
	}
	return false
}

// Discoverer fans out one partial search per requested identifier.
type Discoverer struct {
	Catalog Searcher
	Policy  retry.Policy

	// Limiter bounds the request rate across the whole fan-out. Optional.
	Limiter *rate.Limiter

	// Limit caps search result count. Defaults to 50.
	Limit    int
	Currency string

	Logger *log.Logger
}

// DiscoverAll discovers variants for every identifier concurrently. Results
// are correlated back to inputs positionally.
//
// Discovery failure degrades to a singleton set holding only the original
// identifier; it never fails the run.
func (d *Discoverer) DiscoverAll(ctx context.Context, identifiers []string) []VariantSet {
	limit := d.Limit
	if limit <= 0 {
		limit = 50
	}
	currency := d.Currency
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}

	out := make([]VariantSet, len(identifiers))

	var wg sync.WaitGroup
	for i, raw := range identifiers {
		wg.Add(1)
		go func(idx int, requested string) {
			defer wg.Done()
			out[idx] = d.discoverOne(ctx, requested, limit, currency)
		}(i, strings.TrimSpace(raw))
	}
	wg.Wait()

	return out
}

func (d *Discoverer) discoverOne(ctx context.Context, requested string, limit int, currency string) VariantSet {
	var hits []catalog.SearchHit
	err := retry.Do(ctx, d.Policy, func(ctx context.Context) error {
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		got, err := d.Catalog.Search(ctx, requested, limit, currency)
		if err != nil {
			return err
		}
		hits = got
		return nil
	})
	if err != nil {
		if d.Logger != nil {
			d.Logger.Printf("discovery degraded: mpn=%q err=%q", requested, err.Error())
		}
		return VariantSet{Requested: requested, Variants: []string{requested}}
	}

	// The requested identifier is a guaranteed member, even when the search
	// result does not echo it back.
	variants := []string{requested}
	seen := map[string]struct{}{requested: {}}
	for _, hit := range hits {
		v := strings.TrimSpace(hit.MPN)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}
	return VariantSet{Requested: requested, Variants: variants}
}
