package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches a rate from an exchangerate.host-style JSON endpoint:
// GET {base}/latest?base=USD&symbols=RUB -> {"rates": {"RUB": <number>}}.
type HTTPSource struct {
	endpoint string
	base     string
	symbol   string
	http     *http.Client
}

// NewHTTPSource builds a source for the base/quote pair. The timeout applies
// per request; the cache applies its own refresh bound on top.
func NewHTTPSource(endpoint, base, symbol string, timeout time.Duration) (*HTTPSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("rate endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse rate endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		base:     strings.TrimSpace(base),
		symbol:   strings.TrimSpace(symbol),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate fetches the current rate for the configured pair.
func (s *HTTPSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("base", s.base)
	q.Set("symbols", s.symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/latest?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if resp.StatusCode/100 != 2 {
		return decimal.Decimal{}, fmt.Errorf("rate source error: status=%s", resp.Status)
	}

	var out ratesResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse rate response: %w", err)
	}
	rate, ok := out.Rates[s.symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("rate response missing symbol %q", s.symbol)
	}
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("rate response has non-positive rate %s", rate)
	}
	return rate, nil
}
