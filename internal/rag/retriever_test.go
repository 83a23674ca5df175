package rag

import (
	"context"
	"math"
	"testing"

	"github.com/koopa0/ragline/internal/knowledge"
	"github.com/koopa0/ragline/internal/log"
	"github.com/koopa0/ragline/internal/testutil"
)

func result(id string, similarity float32, embedding []float32) knowledge.Result {
	return knowledge.Result{
		Document:   knowledge.Document{ID: id, Content: "content " + id, Embedding: embedding},
		Similarity: similarity,
	}
}

// Embeddings fabricated so that cosine(A,B) ≈ 0.95 and cosine(A,C) ≈ 0.10.
func diversityPool() []knowledge.Result {
	return []knowledge.Result{
		result("A", 0.90, []float32{1, 0, 0}),
		result("B", 0.85, []float32{0.95, float32(math.Sqrt(1 - 0.95*0.95)), 0}),
		result("C", 0.80, []float32{0.10, 0, float32(math.Sqrt(1 - 0.10*0.10))}),
	}
}

func TestSelectMMRPrefersDiverseCandidate(t *testing.T) {
	// With near-duplicates A and B, MMR at lambda 0.5 picks the diverse C
	// over the slightly more relevant B:
	//   B: 0.5*0.85 - 0.5*0.95 = -0.05
	//   C: 0.5*0.80 - 0.5*0.10 =  0.35
	selected := selectMMR(diversityPool(), 0.5, 2)

	if len(selected) != 2 {
		t.Fatalf("selected %d results, want 2", len(selected))
	}
	if selected[0].Document.ID != "A" || selected[1].Document.ID != "C" {
		t.Errorf("selected [%s, %s], want [A, C]",
			selected[0].Document.ID, selected[1].Document.ID)
	}
}

func TestSelectMMRPureRelevance(t *testing.T) {
	// lambda 1 ignores diversity entirely: ranking order survives.
	selected := selectMMR(diversityPool(), 1.0, 3)

	want := []string{"A", "B", "C"}
	for i, id := range want {
		if selected[i].Document.ID != id {
			t.Errorf("selected[%d] = %s, want %s", i, selected[i].Document.ID, id)
		}
	}
}

func TestSelectMMRIsDeterministic(t *testing.T) {
	first := selectMMR(diversityPool(), 0.5, 2)
	for i := 0; i < 10; i++ {
		again := selectMMR(diversityPool(), 0.5, 2)
		if len(again) != len(first) {
			t.Fatalf("run %d selected %d results, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Document.ID != first[j].Document.ID {
				t.Fatalf("run %d selected %s at %d, want %s",
					i, again[j].Document.ID, j, first[j].Document.ID)
			}
		}
	}
}

func TestSelectMMRTiesResolveToEarlierRank(t *testing.T) {
	// Identical relevance and mutually orthogonal embeddings: every score
	// ties, so pool order (rank, then ID) must decide.
	pool := []knowledge.Result{
		result("a", 0.5, []float32{1, 0, 0}),
		result("b", 0.5, []float32{0, 1, 0}),
		result("c", 0.5, []float32{0, 0, 1}),
	}

	selected := selectMMR(pool, 0.5, 3)
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if selected[i].Document.ID != id {
			t.Errorf("selected[%d] = %s, want %s", i, selected[i].Document.ID, id)
		}
	}
}

func TestSelectMMRSmallPool(t *testing.T) {
	pool := diversityPool()[:1]

	selected := selectMMR(pool, 0.5, 4)
	if len(selected) != 1 {
		t.Fatalf("selected %d results from pool of 1, want 1", len(selected))
	}

	if got := selectMMR(nil, 0.5, 4); len(got) != 0 {
		t.Errorf("selected %d results from empty pool, want 0", len(got))
	}
}

func TestSelectMMRDistinctIDs(t *testing.T) {
	selected := selectMMR(diversityPool(), 0.0, 3)
	seen := make(map[string]bool)
	for _, s := range selected {
		if seen[s.Document.ID] {
			t.Fatalf("duplicate document %s in selection", s.Document.ID)
		}
		seen[s.Document.ID] = true
	}
}

func TestRetrieverConfigValidation(t *testing.T) {
	store := knowledge.New(testutil.NewMockEmbedder(4), log.NewNop())

	tests := []struct {
		name string
		cfg  RetrieverConfig
		ok   bool
	}{
		{"valid", RetrieverConfig{Store: store, TopK: 4, FetchK: 10, Lambda: 0.5}, true},
		{"nil store", RetrieverConfig{TopK: 4, FetchK: 10, Lambda: 0.5}, false},
		{"zero top_k", RetrieverConfig{Store: store, TopK: 0, FetchK: 10, Lambda: 0.5}, false},
		{"fetch_k below top_k", RetrieverConfig{Store: store, TopK: 4, FetchK: 2, Lambda: 0.5}, false},
		{"lambda above one", RetrieverConfig{Store: store, TopK: 4, FetchK: 10, Lambda: 1.5}, false},
		{"lambda boundaries", RetrieverConfig{Store: store, TopK: 4, FetchK: 10, Lambda: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetriever(tt.cfg)
			if tt.ok && err != nil {
				t.Errorf("NewRetriever() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("NewRetriever() = nil, want error")
			}
		})
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	store := knowledge.New(testutil.NewMockEmbedder(4), log.NewNop())
	r, err := NewRetriever(RetrieverConfig{Store: store, TopK: 4, FetchK: 10, Lambda: 0.5})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index, want 0", len(results))
	}
}

func TestRetrieveEndToEnd(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewMockEmbedder(3)
	embedder.SetVector("query", []float32{1, 0, 0})
	embedder.SetVector("about A", []float32{1, 0, 0})
	embedder.SetVector("near duplicate of A", []float32{0.95, float32(math.Sqrt(1 - 0.95*0.95)), 0})
	embedder.SetVector("something else", []float32{0.10, 0, float32(math.Sqrt(1 - 0.10*0.10))})

	store := knowledge.New(embedder, log.NewNop())
	for id, content := range map[string]string{
		"doc-a": "about A",
		"doc-b": "near duplicate of A",
		"doc-c": "something else",
	} {
		if err := store.Add(ctx, knowledge.Document{ID: id, Content: content}); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	r, err := NewRetriever(RetrieverConfig{Store: store, TopK: 2, FetchK: 10, Lambda: 0.5})
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	results, err := r.Retrieve(ctx, "query")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Document.ID != "doc-a" || results[1].Document.ID != "doc-c" {
		t.Errorf("retrieved [%s, %s], want [doc-a, doc-c]",
			results[0].Document.ID, results[1].Document.ID)
	}
}
