// Package pricing filters seller offers against the allow-list and computes
// derived purchase/sale prices.
package pricing

import (
	"strings"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/shopspring/decimal"
)

// DefaultAllowedSellers is the fixed set of sellers permitted in output.
var DefaultAllowedSellers = []string{
	"Mouser", "Digi-Key", "Arrow", "TTI", "ADI",
	"Coilcraft", "Rochester", "Verical", "Texas Instruments", "MINICIRCUITS",
}

// Fixed pricing coefficients. These are business constants, not configuration:
// purchase discount 18%, flat delivery surcharge, flat markup.
var (
	purchasingFactor  = decimal.RequireFromString("0.82")
	deliverySurcharge = decimal.RequireFromString("1.27")
	markup            = decimal.RequireFromString("1.18")
)

// Quote is one valid price break with its derived prices, all rounded to two
// decimals.
type Quote struct {
	Quantity         int64           `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	Purchasing       decimal.Decimal `json:"target_price_purchasing"`
	CostWithDelivery decimal.Decimal `json:"cost_with_delivery"`
	SalePrice        decimal.Decimal `json:"target_price_sales"`
}

// Offer is one allow-listed seller offer that survived price-break parsing.
type Offer struct {
	SellerID          string
	SellerName        string
	SellerVerified    bool
	SellerHomepageURL string
	Stock             int64
	Breaks            []Quote
	// Best is the minimum-price break, the representative quote.
	Best Quote
}

// Engine applies the seller allow-list and the pricing formula.
type Engine struct {
	allowed map[string]struct{}
}

// NewEngine builds an Engine. An empty allow-list permits every seller.
func NewEngine(allowedSellers []string) *Engine {
	e := &Engine{}
	if len(allowedSellers) > 0 {
		e.allowed = make(map[string]struct{}, len(allowedSellers))
		for _, s := range allowedSellers {
			name := strings.TrimSpace(s)
			if name == "" {
				continue
			}
			e.allowed[name] = struct{}{}
		}
	}
	return e
}

// Allowed reports whether a seller name passes the allow-list.
func (e *Engine) Allowed(sellerName string) bool {
	if e.allowed == nil {
		return true
	}
	_, ok := e.allowed[sellerName]
	return ok
}

// FilterOffers walks a part's sellers and returns the surviving offers:
// allow-listed seller, at least one parseable price break. Breaks whose price
// fails numeric parsing are discarded; an offer with zero valid breaks is
// dropped entirely.
func (e *Engine) FilterOffers(part catalog.Part) []Offer {
	var out []Offer
	for _, seller := range part.Sellers {
		name := strings.TrimSpace(seller.Company.Name)
		if name == "" || !e.Allowed(name) {
			continue
		}
		for _, offer := range seller.Offers {
			breaks := validBreaks(offer.Prices)
			if len(breaks) == 0 {
				continue
			}
			out = append(out, Offer{
				SellerID:          seller.Company.ID,
				SellerName:        name,
				SellerVerified:    seller.Company.IsVerified,
				SellerHomepageURL: seller.Company.HomepageURL,
				Stock:             offer.InventoryLevel,
				Breaks:            breaks,
				Best:              bestQuote(breaks),
			})
		}
	}
	return out
}

func validBreaks(prices []catalog.PriceBreak) []Quote {
	var out []Quote
	for _, pb := range prices {
		price, err := decimal.NewFromString(strings.TrimSpace(pb.Price.String()))
		if err != nil {
			continue
		}
		out = append(out, derive(pb, price))
	}
	return out
}

func derive(pb catalog.PriceBreak, price decimal.Decimal) Quote {
	purchasing := price.Mul(purchasingFactor)
	cost := purchasing.Add(deliverySurcharge)
	sale := cost.Add(markup)
	return Quote{
		Quantity:         pb.Quantity,
		Price:            price,
		Currency:         pb.Currency,
		Purchasing:       purchasing.Round(2),
		CostWithDelivery: cost.Round(2),
		SalePrice:        sale.Round(2),
	}
}

func bestQuote(breaks []Quote) Quote {
	best := breaks[0]
	for _, q := range breaks[1:] {
		if q.Price.Cmp(best.Price) < 0 {
			best = q
		}
	}
	return best
}
