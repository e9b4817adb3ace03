// Package nexar implements the catalog.Client contract against the Nexar
// GraphQL API.
package nexar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
)

const searchQuery = `
query Search($q: String!, $limit: Int!, $currency: String!) {
  supSearch(q: $q, limit: $limit, currency: $currency) {
    results {
      part { mpn name }
    }
  }
}`

const matchQuery = `
query MatchParts($queries: [SupPartMatchQuery!]!) {
  supMultiMatch(queries: $queries) {
    parts {
      mpn
      name
      manufacturer { id name }
      category { id name }
      images { url }
      descriptions { text }
      sellers {
        company { id name isVerified homepageUrl }
        offers {
          inventoryLevel
          prices { quantity price currency }
        }
      }
    }
  }
}`

// Config carries the catalog endpoint and client-credentials settings.
type Config struct {
	// BaseURL is the GraphQL endpoint base (for example, "https://api.nexar.com").
	BaseURL string
	// TokenURL is the identity token endpoint. Leave empty together with
	// ClientID to talk to an unauthenticated catalog (local mock).
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Timeout bounds each HTTP request. Defaults to 60s.
	Timeout time.Duration
}

// Client is a catalog.Client backed by GraphQL over HTTP with a lazily
// fetched, expiry-cached bearer token.
type Client struct {
	graphqlURL string
	tokenURL   string
	clientID   string
	secret     string
	http       *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ catalog.Client = (*Client)(nil)

// New constructs a Client. ClientID/ClientSecret are required whenever
// TokenURL is set.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse catalog URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("catalog URL must include a host (got %q)", cfg.BaseURL)
	}

	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL != "" && (strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "") {
		return nil, fmt.Errorf("client id and secret are required with a token URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		graphqlURL: strings.TrimRight(u.String(), "/") + "/graphql",
		tokenURL:   tokenURL,
		clientID:   strings.TrimSpace(cfg.ClientID),
		secret:     strings.TrimSpace(cfg.ClientSecret),
		http:       &http.Client{Timeout: timeout},
	}, nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type searchData struct {
	SupSearch struct {
		Results []struct {
			Part catalog.SearchHit `json:"part"`
		} `json:"results"`
	} `json:"supSearch"`
}

type matchData struct {
	SupMultiMatch catalog.MatchResults `json:"supMultiMatch"`
}

// Search performs a partial-text search for identifier variants.
func (c *Client) Search(ctx context.Context, q string, limit int, currency string) ([]catalog.SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	raw, err := c.query(ctx, "search", searchQuery, map[string]any{
		"q":        q,
		"limit":    limit,
		"currency": currency,
	})
	if err != nil {
		return nil, err
	}

	var data searchData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	hits := make([]catalog.SearchHit, 0, len(data.SupSearch.Results))
	for _, r := range data.SupSearch.Results {
		hits = append(hits, r.Part)
	}
	return hits, nil
}

// MatchParts resolves one chunk of identifiers in a single bulk call.
func (c *Client) MatchParts(ctx context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
	raw, err := c.query(ctx, "matchParts", matchQuery, map[string]any{
		"queries": queries,
	})
	if err != nil {
		return nil, err
	}

	var data matchData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse match response: %w", err)
	}
	return []catalog.MatchResult(data.SupMultiMatch), nil
}

func (c *Client) query(ctx context.Context, op, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.tokenURL != "" {
		token, err := c.bearerToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError(op, resp, rb)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return nil, &retry.TransientError{Err: herr}
		}
		return nil, herr
	}

	var env graphqlEnvelope
	if err := json.Unmarshal(rb, &env); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", op, err)
	}
	if len(env.Errors) > 0 {
		return nil, fmt.Errorf("catalog graphql error: op=%s message=%q", op, env.Errors[0].Message)
	}
	return env.Data, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// bearerToken returns a cached token, fetching a new one when the cached
// value is within a minute of expiry.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-1*time.Minute)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		herr := newHTTPError("token", resp, rb)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return "", &retry.TransientError{Err: herr}
		}
		return "", herr
	}

	var tok tokenResponse
	if err := json.Unmarshal(rb, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	c.token = tok.AccessToken
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}
