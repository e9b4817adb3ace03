package match_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/match"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
)

type fnBatchClient struct {
	f func(ctx context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error)
}

func (c fnBatchClient) MatchParts(ctx context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
	return c.f(ctx, queries)
}

func tinyPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Backoff: 1 * time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func variants(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "MPN-" + string(rune('A'+i))
	}
	return out
}

func TestMatchAll_ChunkCount(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var sizes []int
	c := fnBatchClient{f: func(_ context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
		mu.Lock()
		sizes = append(sizes, len(queries))
		mu.Unlock()
		return []catalog.MatchResult{}, nil
	}}
	m := &match.Matcher{Catalog: c, Policy: tinyPolicy(), ChunkSize: 5}

	out := m.MatchAll(context.Background(), variants(13))
	if out.Calls != 3 {
		t.Fatalf("expected 3 calls for 13 variants at chunk size 5, got %d", out.Calls)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{5, 5, 3}
	for i, w := range want {
		if sizes[i] != w {
			t.Fatalf("chunk %d size: got %d, want %d", i, sizes[i], w)
		}
	}
}

func TestMatchAll_FailedChunkIsIsolated(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	chunkCalls := 0
	c := fnBatchClient{f: func(_ context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
		mu.Lock()
		defer mu.Unlock()
		// The middle chunk (starting at MPN-C) always fails.
		if queries[0].MPN == "MPN-C" {
			return nil, &retry.TransientError{Err: errors.New("rate limited")}
		}
		chunkCalls++
		blocks := make([]catalog.MatchResult, 0, len(queries))
		for _, q := range queries {
			blocks = append(blocks, catalog.MatchResult{Parts: []catalog.Part{{MPN: q.MPN}}})
		}
		return blocks, nil
	}}
	m := &match.Matcher{Catalog: c, Policy: tinyPolicy(), ChunkSize: 2}

	out := m.MatchAll(context.Background(), variants(6)) // chunks: AB, CD, EF
	if len(out.Parts) != 4 {
		t.Fatalf("expected 4 parts from surviving chunks, got %d", len(out.Parts))
	}
	for _, v := range []string{"MPN-C", "MPN-D"} {
		if _, ok := out.Dropped[v]; !ok {
			t.Fatalf("expected %s in dropped set, got %#v", v, out.Dropped)
		}
	}
	for _, v := range []string{"MPN-A", "MPN-B", "MPN-E", "MPN-F"} {
		if _, ok := out.Dropped[v]; ok {
			t.Fatalf("%s must not be dropped", v)
		}
	}
}

func TestMatchAll_EmptyInputIssuesNoCalls(t *testing.T) {
	t.Parallel()

	c := fnBatchClient{f: func(_ context.Context, _ []catalog.MatchQuery) ([]catalog.MatchResult, error) {
		t.Fatal("unexpected call")
		return nil, nil
	}}
	m := &match.Matcher{Catalog: c, Policy: tinyPolicy()}

	out := m.MatchAll(context.Background(), nil)
	if out.Calls != 0 || len(out.Parts) != 0 {
		t.Fatalf("unexpected outcome: %#v", out)
	}
}

func TestMatchAll_RetriesTransientChunk(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	c := fnBatchClient{f: func(_ context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, &retry.TransientError{Err: errors.New("blip")}
		}
		return []catalog.MatchResult{{Parts: []catalog.Part{{MPN: queries[0].MPN}}}}, nil
	}}
	m := &match.Matcher{Catalog: c, Policy: tinyPolicy(), ChunkSize: 15}

	out := m.MatchAll(context.Background(), []string{"ABC123"})
	if len(out.Parts) != 1 || len(out.Dropped) != 0 {
		t.Fatalf("expected recovered chunk, got %#v", out)
	}
	if out.Calls != 2 {
		t.Fatalf("expected 2 issued calls, got %d", out.Calls)
	}
}
