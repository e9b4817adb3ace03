package nexar_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/catalog/nexar"
	"github.com/Reve1io/BomProcessorBackend/internal/mockcatalog"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
)

func seedParts() []catalog.Part {
	return []catalog.Part{
		{
			MPN:          "ABC123",
			Name:         "ABC123 Resistor",
			Manufacturer: catalog.Company{ID: "m1", Name: "Acme"},
			Sellers: []catalog.Seller{
				{
					Company: catalog.Company{ID: "s1", Name: "Mouser", IsVerified: true},
					Offers: []catalog.Offer{
						{InventoryLevel: 200, Prices: []catalog.PriceBreak{{Quantity: 1, Price: "10.00", Currency: "USD"}}},
					},
				},
			},
		},
		{MPN: "ABC123-X", Name: "ABC123-X Resistor"},
	}
}

func newClient(t *testing.T, srv *mockcatalog.Server, withAuth bool) *nexar.Client {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := nexar.Config{BaseURL: ts.URL}
	if withAuth {
		cfg.TokenURL = ts.URL + "/connect/token"
		cfg.ClientID = "id"
		cfg.ClientSecret = "secret"
	}
	c, err := nexar.New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSearch_ReturnsHits(t *testing.T) {
	t.Parallel()

	srv := mockcatalog.New(seedParts())
	c := newClient(t, srv, false)

	hits, err := c.Search(context.Background(), "abc123", 50, "USD")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].MPN != "ABC123" || hits[1].MPN != "ABC123-X" {
		t.Fatalf("unexpected hits: %#v", hits)
	}
}

func TestSearch_SendsBearerToken(t *testing.T) {
	t.Parallel()

	srv := mockcatalog.New(seedParts())
	srv.RequireBearerToken("mock-token")
	c := newClient(t, srv, true)

	if _, err := c.Search(context.Background(), "abc", 10, "USD"); err != nil {
		t.Fatalf("search with auth: %v", err)
	}
}

func TestMatchParts_DecodesNestedOffers(t *testing.T) {
	t.Parallel()

	srv := mockcatalog.New(seedParts())
	c := newClient(t, srv, false)

	res, err := c.MatchParts(context.Background(), []catalog.MatchQuery{{MPN: "ABC123"}, {MPN: "NOPE"}})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 result blocks, got %d", len(res))
	}
	if len(res[0].Parts) != 1 || len(res[1].Parts) != 0 {
		t.Fatalf("unexpected blocks: %#v", res)
	}
	part := res[0].Parts[0]
	if part.Manufacturer.Name != "Acme" {
		t.Fatalf("unexpected manufacturer: %#v", part.Manufacturer)
	}
	if len(part.Sellers) != 1 || part.Sellers[0].Company.Name != "Mouser" {
		t.Fatalf("unexpected sellers: %#v", part.Sellers)
	}
	if part.Sellers[0].Offers[0].Prices[0].Price.String() != "10.00" {
		t.Fatalf("unexpected price: %#v", part.Sellers[0].Offers[0].Prices[0])
	}
}

func TestMatchParts_NormalizesSingleObjectResponse(t *testing.T) {
	t.Parallel()

	srv := mockcatalog.New(seedParts())
	srv.SingleObjectMatch(true)
	c := newClient(t, srv, false)

	res, err := c.MatchParts(context.Background(), []catalog.MatchQuery{{MPN: "ABC123"}})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(res) != 1 || len(res[0].Parts) != 1 || res[0].Parts[0].MPN != "ABC123" {
		t.Fatalf("unexpected normalization: %#v", res)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := mockcatalog.New(seedParts())
	srv.FailNextSearches(1)
	c := newClient(t, srv, false)

	_, err := c.Search(context.Background(), "abc", 10, "USD")
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var he *nexar.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError 500, got %v", err)
	}
}

func TestHTTPError_RedactsSecrets(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`invalid client_secret=super-secret-value`))
	}))
	t.Cleanup(ts.Close)

	c, err := nexar.New(nexar.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.Search(context.Background(), "abc", 10, "USD")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "super-secret-value") {
		t.Fatalf("error leaks secret: %v", err)
	}
}
