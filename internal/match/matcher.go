// Package match performs chunked bulk resolution of identifier variants and
// re-attributes matched parts to the originally requested identifiers.
package match

import (
	"context"
	"log"

	"github.com/Reve1io/BomProcessorBackend/internal/catalog"
	"github.com/Reve1io/BomProcessorBackend/internal/retry"
	"golang.org/x/time/rate"
)

// DefaultChunkSize bounds how many variants go into one bulk match call.
const DefaultChunkSize = 15

// BatchClient is the catalog surface the matcher needs.
type BatchClient interface {
	MatchParts(ctx context.Context, queries []catalog.MatchQuery) ([]catalog.MatchResult, error)
}

// Matcher splits variants into fixed-size chunks and resolves each chunk with
// one bulk call under the retry policy. Chunks fail independently.
type Matcher struct {
	Catalog BatchClient
	Policy  retry.Policy

	// Limiter bounds the request rate. Optional.
	Limiter *rate.Limiter

	ChunkSize int
	Logger    *log.Logger
}

// Outcome is the combined result of matching all chunks.
type Outcome struct {
	// Parts holds every matched part from every successful chunk.
	Parts []catalog.Part
	// Dropped holds the variants of chunks that exhausted their retries.
	// Those variants simply never produce matches.
	Dropped map[string]struct{}
	// Calls counts issued bulk match calls.
	Calls int
}

// MatchAll resolves all variants chunk by chunk. A chunk exhausting its
// retries discards only that chunk's variants; the run continues.
func (m *Matcher) MatchAll(ctx context.Context, variants []string) Outcome {
	size := m.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	out := Outcome{Dropped: make(map[string]struct{})}
	for start := 0; start < len(variants); start += size {
		end := start + size
		if end > len(variants) {
			end = len(variants)
		}
		chunk := variants[start:end]
		chunkNo := start/size + 1

		queries := make([]catalog.MatchQuery, 0, len(chunk))
		for _, v := range chunk {
			queries = append(queries, catalog.MatchQuery{MPN: v})
		}

		var blocks []catalog.MatchResult
		err := retry.Do(ctx, m.Policy, func(ctx context.Context) error {
			if m.Limiter != nil {
				if err := m.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			out.Calls++
			got, err := m.Catalog.MatchParts(ctx, queries)
			if err != nil {
				return err
			}
			blocks = got
			return nil
		})
		if err != nil {
			if m.Logger != nil {
				m.Logger.Printf("match chunk dropped: chunk=%d size=%d err=%q", chunkNo, len(chunk), err.Error())
			}
			for _, v := range chunk {
				out.Dropped[v] = struct{}{}
			}
			continue
		}

		for _, block := range blocks {
			out.Parts = append(out.Parts, block.Parts...)
		}
	}
	return out
}
