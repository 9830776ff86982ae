package store

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"rag-retrieval-service/models"
	"rag-retrieval-service/utils"

	"github.com/redis/go-redis/v9"
)

// Redis key layout:
//   rag:doc:{collection}:{chunk_id}    JSON record
//   rag:idx:collection:{collection}    zset chunk_id -> insertion seq
//   rag:idx:source:{collection}:{h}    set of chunk_ids from one source
//   rag:sources:{collection}           hash source name -> 1
//   rag:dim:{collection}               established vector dimension
//   rag:seq:{collection}               insertion sequence counter
//   rag:collections                    set of known collection names
const (
	collectionsKey = "rag:collections"
)

// RedisStore is the durable remote backend. Redis has no native
// vector search, so the member index enumerates candidate chunk IDs
// and similarity is computed here after fetching them; ranking is
// identical to the in-memory backend.
type RedisStore struct {
	rdb   *redis.Client
	retry retryPolicy
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{
		rdb:   rdb,
		retry: newRetryPolicy("redis", opts),
	}
}

func docKey(collection, chunkID string) string {
	return fmt.Sprintf("rag:doc:%s:%s", collection, chunkID)
}

func collectionKey(collection string) string {
	return fmt.Sprintf("rag:idx:collection:%s", collection)
}

func sourceKey(collection, source string) string {
	sum := md5.Sum([]byte(source))
	return fmt.Sprintf("rag:idx:source:%s:%s", collection, hex.EncodeToString(sum[:])[:12])
}

func sourcesKey(collection string) string {
	return fmt.Sprintf("rag:sources:%s", collection)
}

func dimKey(collection string) string { return fmt.Sprintf("rag:dim:%s", collection) }
func seqKey(collection string) string { return fmt.Sprintf("rag:seq:%s", collection) }

// storedRecord is the JSON document persisted per chunk. Large chunk
// texts are compressed and base64 encoded before storage.
type storedRecord struct {
	ChunkID     string         `json:"chunk_id"`
	Vector      []float32      `json:"vector"`
	Text        string         `json:"text"`
	Compressed  bool           `json:"compressed"`
	Compression string         `json:"compression,omitempty"`
	Source      string         `json:"source"`
	Collection  string         `json:"collection"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func encodeRecord(rec models.VectorRecord) ([]byte, error) {
	sr := storedRecord{
		ChunkID:    rec.ChunkID,
		Vector:     rec.Vector,
		Text:       rec.Text,
		Source:     rec.Source,
		Collection: rec.Collection,
		Metadata:   rec.Metadata,
		CreatedAt:  time.Now().UTC(),
	}

	compressed, algorithm, err := utils.CompressText(rec.Text)
	if err != nil {
		return nil, err
	}
	if algorithm != utils.CompressionNone {
		sr.Compressed = true
		sr.Compression = string(algorithm)
		sr.Text = base64.StdEncoding.EncodeToString(compressed)
	}

	return json.Marshal(sr)
}

func decodeRecord(data []byte) (models.VectorRecord, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return models.VectorRecord{}, fmt.Errorf("failed to decode record: %w", err)
	}

	text := sr.Text
	if sr.Compressed {
		raw, err := base64.StdEncoding.DecodeString(sr.Text)
		if err != nil {
			return models.VectorRecord{}, fmt.Errorf("failed to decode chunk text: %w", err)
		}
		text, err = utils.DecompressText(raw, utils.CompressionAlgorithm(sr.Compression))
		if err != nil {
			return models.VectorRecord{}, err
		}
	}

	return models.VectorRecord{
		ChunkID:    sr.ChunkID,
		Vector:     sr.Vector,
		Text:       text,
		Source:     sr.Source,
		Collection: sr.Collection,
		Metadata:   sr.Metadata,
	}, nil
}

func (s *RedisStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.retry.run(ctx, "upsert", func(ctx context.Context) error {
		established, err := s.rdb.Get(ctx, dimKey(collection)).Int()
		if err != nil && err != redis.Nil {
			return err
		}

		dim, err := validateBatch(records, established)
		if err != nil {
			return err
		}

		// Reserve insertion ranks up front; ZAddNX keeps the original
		// rank when a chunk ID is replaced.
		base, err := s.rdb.IncrBy(ctx, seqKey(collection), int64(len(records))).Result()
		if err != nil {
			return err
		}
		base -= int64(len(records))

		pipe := s.rdb.TxPipeline()
		if established == 0 {
			pipe.SetNX(ctx, dimKey(collection), dim, 0)
		}
		pipe.SAdd(ctx, collectionsKey, collection)

		for i, rec := range records {
			data, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			pipe.Set(ctx, docKey(collection, rec.ChunkID), data, 0)
			pipe.ZAddNX(ctx, collectionKey(collection), redis.Z{
				Score:  float64(base + int64(i) + 1),
				Member: rec.ChunkID,
			})
			pipe.SAdd(ctx, sourceKey(collection, rec.Source), rec.ChunkID)
			pipe.HSet(ctx, sourcesKey(collection), rec.Source, 1)
		}

		_, err = pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStore) Search(ctx context.Context, collection string, query []float32, topK int, filter Filter) ([]models.ScoredRecord, error) {
	var results []models.ScoredRecord

	err := s.retry.run(ctx, "search", func(ctx context.Context) error {
		known, err := s.rdb.SIsMember(ctx, collectionsKey, collection).Result()
		if err != nil {
			return err
		}
		if !known {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		// ZRange by score yields candidates in insertion order, which
		// the ranking relies on for deterministic tie-breaking.
		ids, err := s.rdb.ZRange(ctx, collectionKey(collection), 0, -1).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			results = []models.ScoredRecord{}
			return nil
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = docKey(collection, id)
		}
		values, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}

		candidates := make([]models.VectorRecord, 0, len(values))
		for _, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue // index member without a document, skip
			}
			rec, err := decodeRecord([]byte(raw))
			if err != nil {
				return err
			}
			candidates = append(candidates, rec)
		}

		results = rank(candidates, query, topK, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *RedisStore) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	removed := 0

	err := s.retry.run(ctx, "delete_by_source", func(ctx context.Context) error {
		known, err := s.rdb.SIsMember(ctx, collectionsKey, collection).Result()
		if err != nil {
			return err
		}
		if !known {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		ids, err := s.rdb.SMembers(ctx, sourceKey(collection, source)).Result()
		if err != nil {
			return err
		}
		removed = len(ids)
		if removed == 0 {
			return nil
		}

		members := make([]interface{}, len(ids))
		keys := make([]string, len(ids))
		for i, id := range ids {
			members[i] = id
			keys[i] = docKey(collection, id)
		}

		pipe := s.rdb.TxPipeline()
		pipe.ZRem(ctx, collectionKey(collection), members...)
		pipe.Del(ctx, keys...)
		pipe.Del(ctx, sourceKey(collection, source))
		pipe.HDel(ctx, sourcesKey(collection), source)
		_, err = pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *RedisStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.retry.run(ctx, "delete_collection", func(ctx context.Context) error {
		ids, err := s.rdb.ZRange(ctx, collectionKey(collection), 0, -1).Result()
		if err != nil {
			return err
		}
		sources, err := s.rdb.HKeys(ctx, sourcesKey(collection)).Result()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(ids)+len(sources)+4)
		for _, id := range ids {
			keys = append(keys, docKey(collection, id))
		}
		for _, src := range sources {
			keys = append(keys, sourceKey(collection, src))
		}
		keys = append(keys,
			collectionKey(collection),
			sourcesKey(collection),
			dimKey(collection),
			seqKey(collection),
		)

		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, collectionsKey, collection)
		_, err = pipe.Exec(ctx)
		return err
	})
}

func (s *RedisStore) Stats(ctx context.Context, collection string) (models.CollectionStats, error) {
	var stats models.CollectionStats

	err := s.retry.run(ctx, "stats", func(ctx context.Context) error {
		known, err := s.rdb.SIsMember(ctx, collectionsKey, collection).Result()
		if err != nil {
			return err
		}
		if !known {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		count, err := s.rdb.ZCard(ctx, collectionKey(collection)).Result()
		if err != nil {
			return err
		}
		dim, err := s.rdb.Get(ctx, dimKey(collection)).Int()
		if err != nil && err != redis.Nil {
			return err
		}

		stats = models.CollectionStats{RecordCount: int(count), Dimension: dim}
		return nil
	})
	if err != nil {
		return models.CollectionStats{}, err
	}
	return stats, nil
}

func (s *RedisStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string

	err := s.retry.run(ctx, "list_collections", func(ctx context.Context) error {
		members, err := s.rdb.SMembers(ctx, collectionsKey).Result()
		if err != nil {
			return err
		}
		sort.Strings(members)
		names = members
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *RedisStore) ListSources(ctx context.Context, collection string) ([]models.SourceStats, error) {
	var stats []models.SourceStats

	err := s.retry.run(ctx, "list_sources", func(ctx context.Context) error {
		known, err := s.rdb.SIsMember(ctx, collectionsKey, collection).Result()
		if err != nil {
			return err
		}
		if !known {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		sources, err := s.rdb.HKeys(ctx, sourcesKey(collection)).Result()
		if err != nil {
			return err
		}
		sort.Strings(sources)

		stats = make([]models.SourceStats, 0, len(sources))
		for _, src := range sources {
			count, err := s.rdb.SCard(ctx, sourceKey(collection, src)).Result()
			if err != nil {
				return err
			}
			stats = append(stats, models.SourceStats{Source: src, Count: int(count)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
