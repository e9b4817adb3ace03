// Package pipeline wires variant discovery, chunked matching, merging, and
// pricing into one run over a requested item list.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/discovery"
	"github.com/Reve1io/BomProcessorBackend/internal/fx"
	"github.com/Reve1io/BomProcessorBackend/internal/match"
	"github.com/Reve1io/BomProcessorBackend/internal/pricing"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Item is one requested identifier with an optional requested quantity.
type Item struct {
	MPN      string `json:"mpn"`
	Quantity *int   `json:"quantity,omitempty"`
}

// Mode selects the output projection.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeShort Mode = "short"
)

// Input is the pipeline entry contract.
type Input struct {
	Items []Item `json:"items"`
	Mode  Mode   `json:"mode"`
}

// Status is the closed set of per-record outcomes.
type Status string

const (
	StatusFound           Status = "Found"
	StatusNotFound        Status = "NotFound"
	StatusNoAllowedOffers Status = "NoAllowedOffers"
	StatusUpstreamError   Status = "UpstreamError"
)

// Record is one enriched output row.
type Record struct {
	RequestedMPN string  `json:"requested_mpn"`
	MPN          *string `json:"mpn"`

	Manufacturer   string `json:"manufacturer,omitempty"`
	ManufacturerID string `json:"manufacturer_id,omitempty"`

	SellerID          string `json:"seller_id,omitempty"`
	SellerName        string `json:"seller_name,omitempty"`
	SellerVerified    bool   `json:"seller_verified,omitempty"`
	SellerHomepageURL string `json:"seller_homepage_url,omitempty"`

	Stock *int64 `json:"stock"`

	PriceBreaks []pricing.Quote  `json:"price_breaks,omitempty"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency,omitempty"`

	Purchasing       *decimal.Decimal `json:"target_price_purchasing,omitempty"`
	CostWithDelivery *decimal.Decimal `json:"cost_with_delivery,omitempty"`
	SalePrice        *decimal.Decimal `json:"target_price_sales,omitempty"`

	CategoryID   string `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Description  string `json:"description,omitempty"`

	RequestedQuantity *int   `json:"requested_quantity,omitempty"`
	Status            Status `json:"status"`
}

// ShortRecord is the reduced, currency-converted projection.
type ShortRecord struct {
	RequestedMPN      string           `json:"requested_mpn"`
	MPN               *string          `json:"mpn"`
	Manufacturer      string           `json:"manufacturer,omitempty"`
	RequestedQuantity *int             `json:"requested_quantity,omitempty"`
	Stock             *int64           `json:"stock"`
	Price             *decimal.Decimal `json:"price"`
	Currency          string           `json:"currency,omitempty"`
	Status            Status           `json:"status"`
}

// Output holds the result of one run in the requested projection.
type Output struct {
	Mode    Mode          `json:"mode"`
	Records []Record      `json:"records,omitempty"`
	Short   []ShortRecord `json:"short,omitempty"`
}

// Config carries the run parameters shared by every job.
type Config struct {
	ChunkSize   int
	SearchLimit int
	Currency    string
	Retry       retry.Policy

	// RateLimitRPS is a global upstream request limit across discovery and
	// matching. Set to <=0 to disable.
	RateLimitRPS float64

	AllowedSellers []string
	PrefixFallback bool

	// FX is required for short mode.
	FX *fx.Cache

	Logger *log.Logger
}

// Pipeline executes the resolution/enrichment flow against one catalog.
type Pipeline struct {
	cfg        Config
	discoverer *discovery.Discoverer
	matcher    *match.Matcher
	engine     *pricing.Engine
	logger     *log.Logger
}

// New builds a Pipeline over the catalog client.
func New(client catalog.Client, cfg Config) *Pipeline {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return &Pipeline{
		cfg: cfg,
		discoverer: &discovery.Discoverer{
			Catalog:  client,
			Policy:   cfg.Retry,
			Limiter:  limiter,
			Limit:    cfg.SearchLimit,
			Currency: cfg.Currency,
			Logger:   cfg.Logger,
		},
		matcher: &match.Matcher{
			Catalog:   client,
			Policy:    cfg.Retry,
			Limiter:   limiter,
			ChunkSize: cfg.ChunkSize,
			Logger:    cfg.Logger,
		},
		engine: pricing.NewEngine(cfg.AllowedSellers),
		logger: cfg.Logger,
	}
}

// Run executes the whole pipeline for one input.
//
// Boundary violations (empty input, blank identifiers, short mode without a
// rate cache) fail before any upstream call; transient upstream failures
// degrade per item or per chunk and never fail the run.
func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	mode := in.Mode
	if mode == "" {
		mode = ModeFull
	}
	if mode != ModeFull && mode != ModeShort {
		return Output{}, fmt.Errorf("unknown mode %q", in.Mode)
	}
	if len(in.Items) == 0 {
		return Output{}, fmt.Errorf("no items to process")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.MPN) == "" {
			return Output{}, fmt.Errorf("item %d: mpn is required", i)
		}
	}
	if mode == ModeShort && p.cfg.FX == nil {
		return Output{}, fmt.Errorf("short mode requires a configured rate cache")
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		if p.logger == nil {
			return
		}
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		p.logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()
	logf("pipeline start: items=%d mode=%s", len(in.Items), mode)

	ids := make([]string, len(in.Items))
	for i, item := range in.Items {
		ids[i] = strings.TrimSpace(item.MPN)
	}

	discoverStart := time.Now()
	sets := p.discoverer.DiscoverAll(ctx, ids)
	var variants []string
	for _, set := range sets {
		variants = append(variants, set.Variants...)
	}
	logf("discovery complete: variants=%d duration=%s", len(variants), time.Since(discoverStart).Round(time.Millisecond))

	matchStart := time.Now()
	outcome := p.matcher.MatchAll(ctx, variants)
	logf(
		"matching complete: parts=%d calls=%d droppedVariants=%d duration=%s",
		len(outcome.Parts),
		outcome.Calls,
		len(outcome.Dropped),
		time.Since(matchStart).Round(time.Millisecond),
	)

	owned := match.Merge(sets, outcome.Parts, match.MergeOptions{
		PrefixFallback: p.cfg.PrefixFallback,
		Logger:         p.logger,
	})

	var records []Record
	for i, item := range in.Items {
		records = append(records, p.itemRecords(item, sets[i], owned[i], outcome.Dropped)...)
	}

	out := Output{Mode: mode, Records: records}
	if mode == ModeShort {
		fxRate := p.cfg.FX.Rate(ctx)
		out.Short = projectShort(records, fxRate)
		out.Records = nil
	}
	logf("pipeline complete: records=%d duration=%s", len(records), time.Since(runStart).Round(time.Millisecond))
	return out, nil
}

// itemRecords maps one requested item's attributed parts to output records.
// Every item yields at least one record.
func (p *Pipeline) itemRecords(item Item, set discovery.VariantSet, owned []match.Owned, dropped map[string]struct{}) []Record {
	requested := set.Requested

	if len(owned) == 0 {
		status := StatusNotFound
		for _, v := range set.Variants {
			if _, ok := dropped[v]; ok {
				status = StatusUpstreamError
				break
			}
		}
		return []Record{{
			RequestedMPN:      requested,
			RequestedQuantity: item.Quantity,
			Status:            status,
		}}
	}

	var out []Record
	for _, ow := range owned {
		offers := p.engine.FilterOffers(ow.Part)
		if len(offers) == 0 {
			out = append(out, Record{
				RequestedMPN:      requested,
				RequestedQuantity: item.Quantity,
				Status:            StatusNoAllowedOffers,
			})
			continue
		}

		part := ow.Part
		imageURL := ""
		if len(part.Images) > 0 {
			imageURL = part.Images[0].URL
		}
		description := ""
		if len(part.Descriptions) > 0 {
			description = part.Descriptions[0].Text
		}

		for _, offer := range offers {
			found := ow.FoundMPN
			stock := offer.Stock
			price := offer.Best.Price
			purchasing := offer.Best.Purchasing
			cost := offer.Best.CostWithDelivery
			sale := offer.Best.SalePrice
			out = append(out, Record{
				RequestedMPN:      requested,
				MPN:               &found,
				Manufacturer:      part.Manufacturer.Name,
				ManufacturerID:    part.Manufacturer.ID,
				SellerID:          offer.SellerID,
				SellerName:        offer.SellerName,
				SellerVerified:    offer.SellerVerified,
				SellerHomepageURL: offer.SellerHomepageURL,
				Stock:             &stock,
				PriceBreaks:       offer.Breaks,
				Price:             &price,
				Currency:          offer.Best.Currency,
				Purchasing:        &purchasing,
				CostWithDelivery:  &cost,
				SalePrice:         &sale,
				CategoryID:        part.Category.ID,
				CategoryName:      part.Category.Name,
				ImageURL:          imageURL,
				Description:       description,
				RequestedQuantity: item.Quantity,
				Status:            StatusFound,
			})
		}
	}
	return out
}

func projectShort(records []Record, rate decimal.Decimal) []ShortRecord {
	out := make([]ShortRecord, 0, len(records))
	for _, r := range records {
		short := ShortRecord{
			RequestedMPN:      r.RequestedMPN,
			MPN:               r.MPN,
			Manufacturer:      r.Manufacturer,
			RequestedQuantity: r.RequestedQuantity,
			Stock:             r.Stock,
			Status:            r.Status,
		}
		if r.Price != nil {
			converted := r.Price.Mul(rate).Round(2)
			short.Price = &converted
			short.Currency = "RUB"
		}
		out = append(out, short)
	}
	return out
}
