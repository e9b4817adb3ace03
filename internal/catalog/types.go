// Package catalog defines the wire model and client contract for the external
// electronic-component catalog.
//
// Any field may be absent in a response; everything decodes to its zero value
// rather than failing.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// SearchHit is one candidate from a partial-text search.
type SearchHit struct {
	MPN  string `json:"mpn"`
	Name string `json:"name"`
}

// MatchQuery is one identifier to resolve in a bulk match call.
type MatchQuery struct {
	MPN string `json:"mpn"`
}

// MatchResult is the result block for one input query of a bulk match call.
type MatchResult struct {
	Parts []Part `json:"parts"`
}

// MatchResults normalizes the bulk match response: the upstream API sometimes
// returns a single object where a list of result blocks is expected.
type MatchResults []MatchResult

func (m *MatchResults) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}
	if trimmed[0] == '{' {
		var single MatchResult
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*m = MatchResults{single}
		return nil
	}
	var list []MatchResult
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*m = MatchResults(list)
	return nil
}

// Part is one matched catalog part with its nested seller offers.
type Part struct {
	MPN          string        `json:"mpn"`
	Name         string        `json:"name"`
	Manufacturer Company       `json:"manufacturer"`
	Category     Category      `json:"category"`
	Images       []Image       `json:"images"`
	Descriptions []Description `json:"descriptions"`
	Sellers      []Seller      `json:"sellers"`
}

// Company identifies a manufacturer or a seller company.
type Company struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsVerified  bool   `json:"isVerified"`
	HomepageURL string `json:"homepageUrl"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Image struct {
	URL string `json:"url"`
}

type Description struct {
	Text string `json:"text"`
}

// Seller groups the offers one company makes for a part.
type Seller struct {
	Company Company `json:"company"`
	Offers  []Offer `json:"offers"`
}

// Offer is one stocked listing with tiered price breaks.
type Offer struct {
	InventoryLevel int64        `json:"inventoryLevel"`
	Prices         []PriceBreak `json:"prices"`
}

// PriceBreak is a (quantity, unit price) tier. Price keeps the raw token so an
// unparseable value can be discarded downstream instead of failing the decode.
type PriceBreak struct {
	Quantity int64     `json:"quantity"`
	Price    FlexPrice `json:"price"`
	Currency string    `json:"currency"`
}

// FlexPrice holds a price token that may arrive as a JSON number, a quoted
// string, or null.
type FlexPrice string

func (p *FlexPrice) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = FlexPrice(strings.TrimSpace(s))
		return nil
	}
	*p = FlexPrice(trimmed)
	return nil
}

func (p FlexPrice) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(p))
	if s == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (p FlexPrice) String() string { return string(p) }

// Client is the read-only catalog surface the pipeline depends on.
type Client interface {
	// Search performs a partial-text search and returns candidate identifiers.
	Search(ctx context.Context, q string, limit int, currency string) ([]SearchHit, error)
	// MatchParts resolves a bounded batch of identifiers in one call. The
	// result blocks are in input-query order.
	MatchParts(ctx context.Context, queries []MatchQuery) ([]MatchResult, error)
}
