package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"rag-retrieval-service/models"
)

// Filter is an exact-match predicate over record metadata. All pairs
// must match; a nil filter matches everything. The reserved key
// "source" matches the record's source field.
type Filter map[string]any

// VectorStore persists chunk vectors and supports exact similarity
// search. Implementations must keep scores and result ordering
// identical: cosine similarity descending, ties broken by insertion
// order (earlier wins).
type VectorStore interface {
	// Upsert replaces any record sharing the same chunk ID. A vector
	// whose length disagrees with the collection's established
	// dimension fails the whole batch before any write.
	Upsert(ctx context.Context, collection string, records []models.VectorRecord) error

	// Search returns up to topK records ranked by cosine similarity.
	// An unknown collection fails with CollectionNotFound; an empty
	// one returns an empty result.
	Search(ctx context.Context, collection string, query []float32, topK int, filter Filter) ([]models.ScoredRecord, error)

	// DeleteBySource removes every record ingested from source and
	// reports how many were removed.
	DeleteBySource(ctx context.Context, collection, source string) (int, error)

	// DeleteCollection drops the collection and all its records.
	// Deleting a collection that never existed is a no-op.
	DeleteCollection(ctx context.Context, collection string) error

	Stats(ctx context.Context, collection string) (models.CollectionStats, error)
	ListCollections(ctx context.Context) ([]string, error)
	ListSources(ctx context.Context, collection string) ([]models.SourceStats, error)
}

// Cosine computes cosine similarity between two vectors, clamped to
// [-1, 1]. A zero vector yields 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// rank scores candidates against the query vector, applies the filter,
// and selects the top k. candidates must be in insertion order: the
// stable sort keeps earlier records first on equal scores, which makes
// ranking deterministic across backends.
func rank(candidates []models.VectorRecord, query []float32, topK int, filter Filter) []models.ScoredRecord {
	scored := make([]models.ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		if !matchesFilter(rec, filter) {
			continue
		}
		scored = append(scored, models.ScoredRecord{
			Record: rec,
			Score:  Cosine(rec.Vector, query),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// matchesFilter checks the exact-match predicate. Values are compared
// by their string rendering so JSON numbers match regardless of how
// they were decoded.
func matchesFilter(rec models.VectorRecord, filter Filter) bool {
	for key, want := range filter {
		var got any
		if key == "source" {
			got = rec.Source
		} else {
			v, ok := rec.Metadata[key]
			if !ok {
				return false
			}
			got = v
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// validateBatch checks every vector in the batch against the
// collection's established dimension (or the first vector when the
// collection is new). Returns the dimension the batch establishes.
func validateBatch(records []models.VectorRecord, established int) (int, error) {
	dim := established
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return 0, models.NewError(models.KindDimensionMismatch, "record %q has an empty vector", rec.ChunkID)
		}
		if dim == 0 {
			dim = len(rec.Vector)
			continue
		}
		if len(rec.Vector) != dim {
			return 0, models.NewError(models.KindDimensionMismatch,
				"record %q has dimension %d, collection expects %d", rec.ChunkID, len(rec.Vector), dim)
		}
	}
	return dim, nil
}
