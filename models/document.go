package models

import "fmt"

// Document is a raw text payload submitted for ingestion.
// Metadata keys are preserved verbatim and become filterable
// fields on every chunk derived from the document.
type Document struct {
	ID         string         `json:"id" bson:"id"`
	Source     string         `json:"source" bson:"source"`
	Collection string         `json:"collection" bson:"collection"`
	Text       string         `json:"text" bson:"text"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Chunk is a bounded contiguous slice of a document's text, the unit
// of embedding and retrieval. ChunkID is deterministic (source + index)
// so re-ingesting the same source upserts in place.
type Chunk struct {
	ChunkID     string `json:"chunk_id" bson:"chunk_id"`
	Text        string `json:"text" bson:"text"`
	StartOffset int    `json:"start_offset" bson:"start_offset"`
	EndOffset   int    `json:"end_offset" bson:"end_offset"`
	Index       int    `json:"index" bson:"index"`
}

// ChunkID builds the deterministic chunk identifier for a source and
// sequence index.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s_%d", source, index)
}

// VectorRecord is the unit stored in and returned by a vector store.
type VectorRecord struct {
	ChunkID    string         `json:"chunk_id" bson:"chunk_id"`
	Vector     []float32      `json:"vector" bson:"vector"`
	Text       string         `json:"text" bson:"text"`
	Source     string         `json:"source" bson:"source"`
	Collection string         `json:"collection" bson:"collection"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// ScoredRecord pairs a stored record with its cosine similarity to the
// query vector, in [-1, 1].
type ScoredRecord struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

// RetrievalResult bundles the ranked matches for a query. Answer is
// filled only when the caller asked for generation on top of retrieval.
type RetrievalResult struct {
	Query   string         `json:"query"`
	Matches []ScoredRecord `json:"matches"`
	Answer  string         `json:"answer,omitempty"`
	Cached  bool           `json:"cached"`
}

// CollectionStats reports the size and vector dimension of a collection.
// Dimension is 0 until the first upsert fixes it.
type CollectionStats struct {
	RecordCount int `json:"record_count"`
	Dimension   int `json:"dimension"`
}

// SourceStats reports per-source record counts within a collection.
type SourceStats struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// IngestResult reports what a single document ingest did.
type IngestResult struct {
	Source     string `json:"source"`
	Collection string `json:"collection"`
	ChunkCount int    `json:"chunk_count"`
	Replaced   int    `json:"replaced"`
}

// CacheStats reports hit and miss counters since startup plus the
// number of live entries.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}
