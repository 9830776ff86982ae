package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	SearchDuration  metric.Float64Histogram
	ChunksIngested  metric.Int64Counter
	CacheLookups    metric.Int64Counter
	StoreOperations metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-retrieval-service")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"retrieval.search.duration",
		metric.WithDescription("Similarity search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIngested, err := meter.Int64Counter(
		"retrieval.chunks.ingested",
		metric.WithDescription("Total chunks written to the vector store"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"retrieval.cache.lookups",
		metric.WithDescription("Cache lookups by cache and outcome"),
	)
	if err != nil {
		return nil, err
	}

	storeOperations, err := meter.Int64Counter(
		"store.operations.total",
		metric.WithDescription("Total vector store operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		SearchDuration:  searchDuration,
		ChunksIngested:  chunksIngested,
		CacheLookups:    cacheLookups,
		StoreOperations: storeOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSearch records similarity search metrics
func (m *Metrics) RecordSearch(collection string, duration float64, matches int) {
	attrs := []attribute.KeyValue{
		attribute.String("collection", collection),
		attribute.Int("matches", matches),
	}

	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records how many chunks a document produced
func (m *Metrics) RecordIngest(collection string, chunks int64) {
	attrs := []attribute.KeyValue{
		attribute.String("collection", collection),
	}

	m.ChunksIngested.Add(context.Background(), chunks, metric.WithAttributes(attrs...))
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	attrs := []attribute.KeyValue{
		attribute.String("cache", cache),
		attribute.Bool("hit", hit),
	}

	m.CacheLookups.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordStoreOperation records vector store operation metrics
func (m *Metrics) RecordStoreOperation(operation, backend string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("store.operation", operation),
		attribute.String("store.backend", backend),
		attribute.Bool("store.success", success),
	}

	m.StoreOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
