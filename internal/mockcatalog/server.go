// Package mockcatalog implements a minimal catalog-like GraphQL surface for
// local runs and tests.
package mockcatalog

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
)

// Call records a GraphQL operation made to the mock service.
type Call struct {
	Op      string
	Queries []string
}

// Server serves token, search, and bulk match endpoints over seeded parts.
type Server struct {
	mu    sync.Mutex
	parts []catalog.Part
	calls []Call

	expectedAuthorization string

	failSearches int
	failMatches  int

	// singleObjectMatch makes supMultiMatch return one object instead of a
	// list of result blocks, mimicking an upstream quirk.
	singleObjectMatch bool
}

// New constructs a mock server seeded with the given parts.
func New(parts []catalog.Part) *Server {
	return &Server{parts: parts}
}

// Seed replaces the seeded parts.
func (s *Server) Seed(parts []catalog.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = parts
}

// RequireBearerToken enforces that GraphQL requests carry the given token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// FailNextSearches makes the next n search calls respond 500.
func (s *Server) FailNextSearches(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSearches = n
}

// FailNextMatches makes the next n bulk match calls respond 500.
func (s *Server) FailNextMatches(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMatches = n
}

// SingleObjectMatch toggles the object-instead-of-list match response shape.
func (s *Server) SingleObjectMatch(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singleObjectMatch = v
}

// Calls returns a snapshot of GraphQL calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// MatchCalls returns the number of bulk match calls received.
func (s *Server) MatchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == "matchParts" {
			n++
		}
	}
	return n
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", s.handleToken)
	mux.HandleFunc("/graphql", s.handleGraphQL)
	return mux
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{
		"access_token": "mock-token",
		"expires_in":   3600,
	})
}

type graphqlRequest struct {
	Query     string `json:"query"`
	Variables struct {
		Q        string `json:"q"`
		Limit    int    `json:"limit"`
		Currency string `json:"currency"`
		Queries  []struct {
			MPN string `json:"mpn"`
		} `json:"queries"`
	} `json:"variables"`
}

func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch {
	case strings.Contains(req.Query, "supSearch"):
		s.handleSearch(w, req)
	case strings.Contains(req.Query, "supMultiMatch"):
		s.handleMatch(w, req)
	default:
		http.Error(w, "unknown operation", http.StatusBadRequest)
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) handleSearch(w http.ResponseWriter, req graphqlRequest) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: "search", Queries: []string{req.Variables.Q}})
	if s.failSearches > 0 {
		s.failSearches--
		s.mu.Unlock()
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}
	parts := s.parts
	s.mu.Unlock()

	limit := req.Variables.Limit
	if limit <= 0 {
		limit = 50
	}
	q := strings.ToLower(strings.TrimSpace(req.Variables.Q))

	type hit struct {
		Part catalog.SearchHit `json:"part"`
	}
	results := make([]hit, 0)
	for _, p := range parts {
		if len(results) >= limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(p.MPN), q) {
			results = append(results, hit{Part: catalog.SearchHit{MPN: p.MPN, Name: p.Name}})
		}
	}

	writeJSON(w, map[string]any{
		"data": map[string]any{
			"supSearch": map[string]any{"results": results},
		},
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, req graphqlRequest) {
	queries := make([]string, 0, len(req.Variables.Queries))
	for _, q := range req.Variables.Queries {
		queries = append(queries, q.MPN)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: "matchParts", Queries: queries})
	if s.failMatches > 0 {
		s.failMatches--
		s.mu.Unlock()
		http.Error(w, "upstream unavailable", http.StatusInternalServerError)
		return
	}
	parts := s.parts
	single := s.singleObjectMatch
	s.mu.Unlock()

	blocks := make([]catalog.MatchResult, 0, len(queries))
	for _, q := range queries {
		block := catalog.MatchResult{Parts: []catalog.Part{}}
		for _, p := range parts {
			if p.MPN == q {
				block.Parts = append(block.Parts, p)
			}
		}
		blocks = append(blocks, block)
	}

	var multiMatch any = blocks
	if single {
		merged := catalog.MatchResult{Parts: []catalog.Part{}}
		for _, b := range blocks {
			merged.Parts = append(merged.Parts, b.Parts...)
		}
		multiMatch = merged
	}

	writeJSON(w, map[string]any{
		"data": map[string]any{
			"supMultiMatch": multiMatch,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
