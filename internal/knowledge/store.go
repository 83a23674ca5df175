// Package knowledge provides an in-memory vector index for document chunks.
//
// Documents are embedded on insert and searched by cosine similarity.
// The index lives for the process lifetime; there is no durable storage
// behind it. Results are fully deterministic: equal similarities are
// ordered by document ID.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/log"
)

// Store manages knowledge documents with vector search capabilities.
// It handles embedding generation on Add and cosine similarity search.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	embedder ai.Embedder
	logger   log.Logger

	mu   sync.RWMutex
	docs map[string]Document
	dim  int // pinned by the first document added; 0 = not yet pinned
}

// New creates a new Store instance.
func New(embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		embedder: embedder,
		logger:   logger,
		docs:     make(map[string]Document),
	}
}

// Add adds a document to the knowledge store.
// When doc.Embedding is empty, the content is embedded using the configured
// embedder. Existing documents with the same ID are replaced (upsert).
//
// The first document pins the index dimensionality; later documents with a
// different vector length are rejected.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID must not be empty")
	}

	embedding := doc.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = s.embedText(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embedding document %q: %w", doc.ID, err)
		}
	}

	if doc.CreateAt.IsZero() {
		doc.CreateAt = time.Now()
	}
	doc.Embedding = embedding

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(embedding)
	} else if len(embedding) != s.dim {
		return fmt.Errorf("document %q has embedding dimension %d, index uses %d",
			doc.ID, len(embedding), s.dim)
	}

	s.docs[doc.ID] = doc
	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search performs semantic search using functional options.
// It embeds the query and returns the most similar documents, ordered by
// similarity descending with ties broken by document ID ascending.
//
// Example usage:
//
//	results, err := store.Search(ctx, "AI safety",
//	    knowledge.WithTopK(10),
//	    knowledge.WithFilter("source_type", "web"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryEmbedding, err := s.embedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return s.searchVector(queryEmbedding, cfg), nil
}

// SearchVector searches by a precomputed query vector.
// An empty store yields an empty result and no error.
func (s *Store) SearchVector(_ context.Context, vec []float32, topK int) []Result {
	return s.searchVector(vec, &searchConfig{topK: topK})
}

func (s *Store) searchVector(vec []float32, cfg *searchConfig) []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matchesFilter(doc.Metadata, cfg.filter) {
			continue
		}
		results = append(results, Result{
			Document:   doc,
			Similarity: Cosine(vec, doc.Embedding),
		})
	}

	// Deterministic ranking: similarity descending, then ID ascending.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Document.ID < results[j].Document.ID
	})

	if cfg.topK > 0 && len(results) > cfg.topK {
		results = results[:cfg.topK]
	}
	return results
}

// Count returns the number of documents matching the given filter.
// A nil or empty filter counts all documents.
func (s *Store) Count(_ context.Context, filter map[string]string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(filter) == 0 {
		return len(s.docs), nil
	}
	n := 0
	for _, doc := range s.docs {
		if matchesFilter(doc.Metadata, filter) {
			n++
		}
	}
	return n, nil
}

// Delete removes a document from the knowledge store.
// Deleting an unknown ID is a no-op.
func (s *Store) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, docID)
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// embedText embeds a single text through the configured embedder.
func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{
				Content: []*ai.Part{ai.NewTextPart(text)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// matchesFilter reports whether metadata satisfies all filter entries.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity between two vectors.
// Mismatched lengths or zero vectors yield 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
