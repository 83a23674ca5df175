// Package rag implements the retrieval side of the answer pipeline:
// query rewriting, diversified retrieval, and prompt assembly.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/koopa0/ragline/internal/knowledge"
	"github.com/koopa0/ragline/internal/log"
)

// RetrieverConfig contains all required parameters for the Retriever.
type RetrieverConfig struct {
	Store  *knowledge.Store
	Logger log.Logger

	// TopK is the number of documents returned per query.
	TopK int

	// FetchK is the size of the candidate pool fetched before
	// diversification. Must be >= TopK.
	FetchK int

	// Lambda balances relevance against diversity in [0, 1]:
	// 1 is pure relevance, 0 is pure diversity.
	Lambda float64
}

func (cfg RetrieverConfig) validate() error {
	if cfg.Store == nil {
		return errors.New("knowledge store is required")
	}
	if cfg.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", cfg.TopK)
	}
	if cfg.FetchK < cfg.TopK {
		return fmt.Errorf("fetch_k (%d) must be >= top_k (%d)", cfg.FetchK, cfg.TopK)
	}
	if cfg.Lambda < 0 || cfg.Lambda > 1 {
		return fmt.Errorf("lambda must be in [0, 1], got %v", cfg.Lambda)
	}
	return nil
}

// Retriever fetches a relevance-ranked candidate pool from the knowledge
// store and reduces it to a smaller, diversity-aware selection using
// maximal marginal relevance (MMR).
//
// Retrieval is deterministic: for the same index contents and query, the
// same documents come back in the same order.
type Retriever struct {
	store  *knowledge.Store
	logger log.Logger
	topK   int
	fetchK int
	lambda float64
}

// NewRetriever creates a Retriever with the given configuration.
func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		store:  cfg.Store,
		logger: logger,
		topK:   cfg.TopK,
		fetchK: cfg.FetchK,
		lambda: cfg.Lambda,
	}, nil
}

// Retrieve returns up to TopK documents for the query, selected by MMR from
// a FetchK-sized relevance-ranked pool. An empty index yields an empty
// result and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]knowledge.Result, error) {
	pool, err := r.store.Search(ctx, query, knowledge.WithTopK(r.fetchK))
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	selected := selectMMR(pool, r.lambda, r.topK)
	r.logger.Debug("retrieved documents",
		"pool", len(pool), "selected", len(selected), "lambda", r.lambda)
	return selected, nil
}

// selectMMR picks up to k results from a relevance-ranked pool.
//
// The first pick is the most relevant candidate. Each further pick maximizes
//
//	lambda*relevance(c) - (1-lambda)*max(sim(c, s) for s in selected)
//
// where sim is cosine similarity between document embeddings. Score ties
// resolve to the earlier pool position; the pool itself is already ordered
// by relevance with ID tie-breaks, so selection is fully deterministic.
func selectMMR(pool []knowledge.Result, lambda float64, k int) []knowledge.Result {
	if len(pool) == 0 || k <= 0 {
		return nil
	}

	remaining := make([]knowledge.Result, len(pool))
	copy(remaining, pool)
	selected := make([]knowledge.Result, 0, min(k, len(pool)))

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			var score float64
			if len(selected) == 0 {
				score = float64(cand.Similarity)
			} else {
				maxSim := math.Inf(-1)
				for _, s := range selected {
					sim := float64(knowledge.Cosine(cand.Document.Embedding, s.Document.Embedding))
					if sim > maxSim {
						maxSim = sim
					}
				}
				score = lambda*float64(cand.Similarity) - (1-lambda)*maxSim
			}
			// Strict > keeps the earlier (higher-ranked) candidate on ties.
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
