package knowledge

import (
	"context"
	"math"
	"testing"

	"github.com/koopa0/ragline/internal/log"
	"github.com/koopa0/ragline/internal/testutil"
)

func TestAddEmbedsAndUpserts(t *testing.T) {
	ctx := context.Background()
	embedder := testutil.NewMockEmbedder(8)
	store := New(embedder, log.NewNop())

	if err := store.Add(ctx, Document{ID: "d1", Content: "hello"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if embedder.CallCount() != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.CallCount())
	}

	// Same ID replaces, count stays 1.
	if err := store.Add(ctx, Document{ID: "d1", Content: "hello again"}); err != nil {
		t.Fatalf("Add upsert: %v", err)
	}
	n, err := store.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestAddRejectsEmptyIDAndMismatchedDimension(t *testing.T) {
	ctx := context.Background()
	store := New(testutil.NewMockEmbedder(4), log.NewNop())

	if err := store.Add(ctx, Document{Content: "no id"}); err == nil {
		t.Error("Add with empty ID succeeded, want error")
	}

	if err := store.Add(ctx, Document{ID: "a", Embedding: []float32{1, 0, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, Document{ID: "b", Embedding: []float32{1, 0}}); err == nil {
		t.Error("Add with mismatched dimension succeeded, want error")
	}
}

func TestSearchVectorRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := New(nil, log.NewNop())

	docs := []Document{
		{ID: "far", Embedding: []float32{0, 1, 0}},
		{ID: "near", Embedding: []float32{1, 0.1, 0}},
		{ID: "exact", Embedding: []float32{1, 0, 0}},
	}
	for _, d := range docs {
		if err := store.Add(ctx, d); err != nil {
			t.Fatalf("Add(%s): %v", d.ID, err)
		}
	}

	results := store.SearchVector(ctx, []float32{1, 0, 0}, 3)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []string{"exact", "near", "far"}
	for i, want := range wantOrder {
		if results[i].Document.ID != want {
			t.Errorf("result[%d] = %s, want %s", i, results[i].Document.ID, want)
		}
	}
}

func TestSearchVectorBreaksTiesByID(t *testing.T) {
	ctx := context.Background()
	store := New(nil, log.NewNop())

	// Identical vectors: identical similarity, so IDs decide the order.
	for _, id := range []string{"c", "a", "b"} {
		if err := store.Add(ctx, Document{ID: id, Embedding: []float32{1, 0}}); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	results := store.SearchVector(ctx, []float32{1, 0}, 3)
	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if results[i].Document.ID != want {
			t.Errorf("result[%d] = %s, want %s", i, results[i].Document.ID, want)
		}
	}
}

func TestSearchVectorEmptyStore(t *testing.T) {
	store := New(nil, log.NewNop())

	results := store.SearchVector(context.Background(), []float32{1, 0}, 5)
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestSearchVectorTopKLimitsResults(t *testing.T) {
	ctx := context.Background()
	store := New(nil, log.NewNop())

	for _, d := range []Document{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0.9, 0.1}},
		{ID: "c", Embedding: []float32{0.8, 0.2}},
	} {
		if err := store.Add(ctx, d); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results := store.SearchVector(ctx, []float32{1, 0}, 2)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearchWithFilter(t *testing.T) {
	ctx := context.Background()
	store := New(testutil.NewMockEmbedder(8), log.NewNop())

	if err := store.Add(ctx, Document{
		ID: "w1", Content: "web doc",
		Metadata: map[string]string{"source_type": "web"},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(ctx, Document{
		ID: "f1", Content: "file doc",
		Metadata: map[string]string{"source_type": "file"},
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.Search(ctx, "doc", WithTopK(10), WithFilter("source_type", "web"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "w1" {
		t.Errorf("filtered search = %v, want only w1", results)
	}

	n, err := store.Count(ctx, map[string]string{"source_type": "file"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count(file) = %d, want 1", n)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := New(nil, log.NewNop())

	if err := store.Add(ctx, Document{ID: "d", Embedding: []float32{1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Delete(ctx, "d"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete unknown: %v", err)
	}

	n, _ := store.Count(ctx, nil)
	if n != 0 {
		t.Errorf("Count = %d after delete, want 0", n)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"scale invariant", []float32{2, 0}, []float32{5, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}
