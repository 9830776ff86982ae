package store

import (
	"context"
	"sort"
	"sync"

	"rag-retrieval-service/models"
)

// InMemoryStore keeps each collection as an append-ordered slice of
// records and performs exact nearest-neighbor search by linear scan.
// Contents do not survive a process restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	mu        sync.RWMutex
	dimension int
	records   []models.VectorRecord
	byID      map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*memCollection)}
}

func (s *InMemoryStore) collection(name string, create bool) *memCollection {
	s.mu.RLock()
	col := s.collections[name]
	s.mu.RUnlock()
	if col != nil || !create {
		return col
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col = s.collections[name]; col == nil {
		col = &memCollection{byID: make(map[string]int)}
		s.collections[name] = col
	}
	return col
}

func (s *InMemoryStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	col := s.collection(collection, true)
	col.mu.Lock()
	defer col.mu.Unlock()

	// Validate the whole batch first so a mismatch leaves the
	// collection unchanged.
	dim, err := validateBatch(records, col.dimension)
	if err != nil {
		return err
	}
	col.dimension = dim

	for _, rec := range records {
		if i, ok := col.byID[rec.ChunkID]; ok {
			// Replacement keeps the record's original insertion rank.
			col.records[i] = rec
			continue
		}
		col.byID[rec.ChunkID] = len(col.records)
		col.records = append(col.records, rec)
	}
	return nil
}

func (s *InMemoryStore) Search(ctx context.Context, collection string, query []float32, topK int, filter Filter) ([]models.ScoredRecord, error) {
	col := s.collection(collection, false)
	if col == nil {
		return nil, models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
	}

	col.mu.RLock()
	defer col.mu.RUnlock()
	return rank(col.records, query, topK, filter), nil
}

func (s *InMemoryStore) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	col := s.collection(collection, false)
	if col == nil {
		return 0, models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	kept := col.records[:0]
	removed := 0
	for _, rec := range col.records {
		if rec.Source == source {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	col.records = kept

	col.byID = make(map[string]int, len(col.records))
	for i, rec := range col.records {
		col.byID[rec.ChunkID] = i
	}
	return removed, nil
}

func (s *InMemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

func (s *InMemoryStore) Stats(ctx context.Context, collection string) (models.CollectionStats, error) {
	col := s.collection(collection, false)
	if col == nil {
		return models.CollectionStats{}, models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
	}

	col.mu.RLock()
	defer col.mu.RUnlock()
	return models.CollectionStats{
		RecordCount: len(col.records),
		Dimension:   col.dimension,
	}, nil
}

func (s *InMemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemoryStore) ListSources(ctx context.Context, collection string) ([]models.SourceStats, error) {
	col := s.collection(collection, false)
	if col == nil {
		return nil, models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
	}

	col.mu.RLock()
	defer col.mu.RUnlock()

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, rec := range col.records {
		if _, seen := counts[rec.Source]; !seen {
			order = append(order, rec.Source)
		}
		counts[rec.Source]++
	}

	stats := make([]models.SourceStats, 0, len(order))
	for _, src := range order {
		stats = append(stats, models.SourceStats{Source: src, Count: counts[src]})
	}
	return stats, nil
}
