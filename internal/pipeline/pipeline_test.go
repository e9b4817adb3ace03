package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/fx"
	"github.com/Reve1io/BomProcessorBackend/internal/pipeline"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
	"github.com/shopspring/decimal"
)

// fakeCatalog serves seeded parts: search returns every seeded MPN containing
// the query, match resolves exact MPNs.
type fakeCatalog struct {
	parts []catalog.Part

	mu          sync.Mutex
	searchErr   error
	matchErr    error
	matchCalls  int
	searchCalls int
}

func (f *fakeCatalog) calls() (searches, matches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls, f.matchCalls
}

func (f *fakeCatalog) Search(_ context.Context, q string, limit int, _ string) ([]catalog.SearchHit, error) {
	f.mu.Lock()
	f.searchCalls++
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []catalog.SearchHit
	for _, p := range f.parts {
		if len(hits) >= limit {
			break
		}
		if q == "" || containsFold(p.MPN, q) {
			hits = append(hits, catalog.SearchHit{MPN: p.MPN, Name: p.Name})
		}
	}
	return hits, nil
}

func (f *fakeCatalog) MatchParts(_ context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
	f.mu.Lock()
	f.matchCalls++
	f.mu.Unlock()
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	blocks := make([]catalog.MatchResult, 0, len(queries))
	for _, q := range queries {
		block := catalog.MatchResult{}
		for _, p := range f.parts {
			if p.MPN == q.MPN {
				block.Parts = append(block.Parts, p)
			}
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func containsFold(s, sub string) bool {
	if len(sub) > len(s) {
		return false
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := 0; j < len(sub); j++ {
			a, b := s[i+j], sub[j]
			if 'A' <= a && a <= 'Z' {
				a += 'a' - 'A'
			}
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func mouserPart() catalog.Part {
	return catalog.Part{
		MPN:          "ABC123",
		Name:         "ABC123 Resistor",
		Manufacturer: catalog.Company{ID: "m1", Name: "Acme"},
		Sellers: []catalog.Seller{
			{
				Company: catalog.Company{ID: "s1", Name: "Mouser", IsVerified: true, HomepageURL: "https://mouser.com"},
				Offers: []catalog.Offer{
					{InventoryLevel: 200, Prices: []catalog.PriceBreak{{Quantity: 1, Price: "10.00", Currency: "USD"}}},
				},
			},
		},
	}
}

func testConfig() pipeline.Config {
	return pipeline.Config{
		ChunkSize:      15,
		AllowedSellers: []string{"Mouser"},
		Retry:          retry.Policy{MaxAttempts: 2, Backoff: 1 * time.Millisecond, BackoffMax: 2 * time.Millisecond},
	}
}

func intPtr(v int) *int { return &v }

func TestRun_FoundEndToEnd(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{parts: []catalog.Part{mouserPart()}}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{
		Items: []pipeline.Item{{MPN: "ABC123", Quantity: intPtr(5)}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out.Records))
	}

	rec := out.Records[0]
	if rec.Status != pipeline.StatusFound {
		t.Fatalf("expected Found, got %s", rec.Status)
	}
	if rec.RequestedMPN != "ABC123" || rec.MPN == nil || *rec.MPN != "ABC123" {
		t.Fatalf("unexpected identifiers: %#v", rec)
	}
	if rec.SellerName != "Mouser" || rec.Stock == nil || *rec.Stock != 200 {
		t.Fatalf("unexpected seller/stock: %#v", rec)
	}
	if rec.RequestedQuantity == nil || *rec.RequestedQuantity != 5 {
		t.Fatalf("unexpected requested quantity: %#v", rec.RequestedQuantity)
	}

	wantDerived := []struct {
		name string
		got  *decimal.Decimal
		want string
	}{
		{"price", rec.Price, "10.00"},
		{"purchasing", rec.Purchasing, "8.20"},
		{"costWithDelivery", rec.CostWithDelivery, "9.47"},
		{"salePrice", rec.SalePrice, "10.65"},
	}
	for _, d := range wantDerived {
		if d.got == nil || !d.got.Equal(decimal.RequireFromString(d.want)) {
			t.Fatalf("%s: got %v, want %s", d.name, d.got, d.want)
		}
	}
}

func TestRun_NotFoundEndToEnd(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{parts: []catalog.Part{mouserPart()}}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{{MPN: "ZZZ999"}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("expected 1 placeholder record, got %d", len(out.Records))
	}
	rec := out.Records[0]
	if rec.Status != pipeline.StatusNotFound || rec.MPN != nil || rec.RequestedMPN != "ZZZ999" {
		t.Fatalf("unexpected placeholder: %#v", rec)
	}
}

func TestRun_EveryItemYieldsARecord(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{parts: []catalog.Part{mouserPart()}}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{
		{MPN: "ABC123"}, {MPN: "ZZZ999"}, {MPN: "QQQ000"},
	}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	perItem := map[string]int{}
	for _, rec := range out.Records {
		perItem[rec.RequestedMPN]++
	}
	for _, id := range []string{"ABC123", "ZZZ999", "QQQ000"} {
		if perItem[id] == 0 {
			t.Fatalf("item %s produced no record: %#v", id, perItem)
		}
	}
}

func TestRun_NoAllowedOffers(t *testing.T) {
	t.Parallel()

	part := mouserPart()
	part.Sellers[0].Company.Name = "SketchyParts Ltd"
	cat := &fakeCatalog{parts: []catalog.Part{part}}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{{MPN: "ABC123"}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].Status != pipeline.StatusNoAllowedOffers {
		t.Fatalf("expected one NoAllowedOffers record, got %#v", out.Records)
	}
}

func TestRun_BoundaryErrors(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{}
	p := pipeline.New(cat, testConfig())

	if _, err := p.Run(context.Background(), pipeline.Input{}); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{{MPN: "  "}}}); err == nil {
		t.Fatal("expected error for blank identifier")
	}
	if _, err := p.Run(context.Background(), pipeline.Input{
		Items: []pipeline.Item{{MPN: "ABC123"}},
		Mode:  "verbose",
	}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if searches, matches := cat.calls(); searches != 0 || matches != 0 {
		t.Fatalf("boundary errors must precede upstream calls: search=%d match=%d", searches, matches)
	}
}

func TestRun_DiscoveryFailureDegradesToOriginalIdentifier(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		parts:     []catalog.Part{mouserPart()},
		searchErr: &retry.TransientError{Err: errors.New("search down")},
	}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{{MPN: "ABC123"}}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Matching still resolves the original identifier.
	if len(out.Records) != 1 || out.Records[0].Status != pipeline.StatusFound {
		t.Fatalf("expected degraded discovery to still find the part, got %#v", out.Records)
	}
}

func TestRun_AllChunksFailingYieldsUpstreamError(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		parts:    []catalog.Part{mouserPart()},
		matchErr: &retry.TransientError{Err: errors.New("match down")},
	}
	p := pipeline.New(cat, testConfig())

	out, err := p.Run(context.Background(), pipeline.Input{Items: []pipeline.Item{{MPN: "ABC123"}}})
	if err != nil {
		t.Fatalf("run must not fail on dropped chunks: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].Status != pipeline.StatusUpstreamError {
		t.Fatalf("expected UpstreamError placeholder, got %#v", out.Records)
	}
}

func TestRun_ShortModeConvertsPrice(t *testing.T) {
	t.Parallel()

	cache := fx.NewCache(fx.SourceFunc(func(_ context.Context) (decimal.Decimal, error) {
		return decimal.NewFromInt(2), nil
	}), fx.Options{})

	cfg := testConfig()
	cfg.FX = cache
	cat := &fakeCatalog{parts: []catalog.Part{mouserPart()}}
	p := pipeline.New(cat, cfg)

	out, err := p.Run(context.Background(), pipeline.Input{
		Items: []pipeline.Item{{MPN: "ABC123"}, {MPN: "ZZZ999"}},
		Mode:  pipeline.ModeShort,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Records != nil {
		t.Fatalf("short mode must not include full records")
	}
	if len(out.Short) != 2 {
		t.Fatalf("expected 2 short records, got %d", len(out.Short))
	}

	found := out.Short[0]
	if found.Price == nil || !found.Price.Equal(decimal.RequireFromString("20.00")) || found.Currency != "RUB" {
		t.Fatalf("unexpected conversion: %#v", found)
	}
	missing := out.Short[1]
	if missing.Price != nil || missing.Currency != "" || missing.Status != pipeline.StatusNotFound {
		t.Fatalf("unexpected short placeholder: %#v", missing)
	}
}

func TestRun_ShortModeWithoutCacheIsRejected(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{parts: []catalog.Part{mouserPart()}}
	p := pipeline.New(cat, testConfig())

	if _, err := p.Run(context.Background(), pipeline.Input{
		Items: []pipeline.Item{{MPN: "ABC123"}},
		Mode:  pipeline.ModeShort,
	}); err == nil {
		t.Fatal("expected error for short mode without rate cache")
	}
}
