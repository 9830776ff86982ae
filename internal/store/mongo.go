package store

import (
	"context"
	"sort"

	"rag-retrieval-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	recordsCollection = "vector_records"
	metaCollection    = "vector_collections"
)

// MongoStore is a durable backend keeping one denormalized document
// per vector record, upserted by chunk ID. A meta document per logical
// collection holds the established dimension and the insertion
// sequence counter that preserves ranking order.
type MongoStore struct {
	db    *mongo.Database
	retry retryPolicy
}

func NewMongoStore(db *mongo.Database, opts Options) *MongoStore {
	return &MongoStore{
		db:    db,
		retry: newRetryPolicy("mongo", opts),
	}
}

// mongoRecord mirrors models.VectorRecord plus the insertion sequence.
type mongoRecord struct {
	ChunkID    string         `bson:"chunk_id"`
	Vector     []float32      `bson:"vector"`
	Text       string         `bson:"text"`
	Source     string         `bson:"source"`
	Collection string         `bson:"collection"`
	Metadata   map[string]any `bson:"metadata,omitempty"`
	Seq        int64          `bson:"seq"`
}

type collectionMeta struct {
	Name      string `bson:"_id"`
	Dimension int    `bson:"dimension"`
	Seq       int64  `bson:"seq"`
}

// EnsureIndexes creates the indexes the store queries depend on.
// Called once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	col := s.db.Collection(recordsCollection)
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "collection", Value: 1}, {Key: "chunk_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "collection", Value: 1}, {Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "collection", Value: 1}, {Key: "seq", Value: 1}}},
	}
	_, err := col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoStore) meta(ctx context.Context, collection string) (*collectionMeta, error) {
	var meta collectionMeta
	err := s.db.Collection(metaCollection).
		FindOne(ctx, bson.M{"_id": collection}).
		Decode(&meta)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *MongoStore) Upsert(ctx context.Context, collection string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.retry.run(ctx, "upsert", func(ctx context.Context) error {
		meta, err := s.meta(ctx, collection)
		established := 0
		if err != nil {
			return err
		}
		if meta != nil {
			established = meta.Dimension
		}

		dim, err := validateBatch(records, established)
		if err != nil {
			return err
		}

		// Reserve insertion ranks; replaced chunks keep their original
		// rank through $setOnInsert.
		var updated collectionMeta
		err = s.db.Collection(metaCollection).FindOneAndUpdate(ctx,
			bson.M{"_id": collection},
			bson.M{
				"$inc":         bson.M{"seq": int64(len(records))},
				"$setOnInsert": bson.M{"dimension": dim},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			return err
		}
		base := updated.Seq - int64(len(records))

		batch := make([]mongo.WriteModel, 0, len(records))
		for i, rec := range records {
			doc := bson.M{
				"chunk_id":   rec.ChunkID,
				"vector":     rec.Vector,
				"text":       rec.Text,
				"source":     rec.Source,
				"collection": collection,
				"metadata":   rec.Metadata,
			}
			batch = append(batch, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"collection": collection, "chunk_id": rec.ChunkID}).
				SetUpdate(bson.M{
					"$set":         doc,
					"$setOnInsert": bson.M{"seq": base + int64(i) + 1},
				}).
				SetUpsert(true))
		}

		_, err = s.db.Collection(recordsCollection).
			BulkWrite(ctx, batch, options.BulkWrite().SetOrdered(true))
		return err
	})
}

func (s *MongoStore) Search(ctx context.Context, collection string, query []float32, topK int, filter Filter) ([]models.ScoredRecord, error) {
	var results []models.ScoredRecord

	err := s.retry.run(ctx, "search", func(ctx context.Context) error {
		meta, err := s.meta(ctx, collection)
		if err != nil {
			return err
		}
		if meta == nil {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		// Fetch the candidate set in insertion order and rank here,
		// so scores and tie-breaking match the other backends.
		cursor, err := s.db.Collection(recordsCollection).Find(ctx,
			bson.M{"collection": collection},
			options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
		)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		var candidates []models.VectorRecord
		for cursor.Next(ctx) {
			var mr mongoRecord
			if err := cursor.Decode(&mr); err != nil {
				return err
			}
			candidates = append(candidates, models.VectorRecord{
				ChunkID:    mr.ChunkID,
				Vector:     mr.Vector,
				Text:       mr.Text,
				Source:     mr.Source,
				Collection: mr.Collection,
				Metadata:   mr.Metadata,
			})
		}
		if err := cursor.Err(); err != nil {
			return err
		}

		results = rank(candidates, query, topK, filter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *MongoStore) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	removed := 0

	err := s.retry.run(ctx, "delete_by_source", func(ctx context.Context) error {
		meta, err := s.meta(ctx, collection)
		if err != nil {
			return err
		}
		if meta == nil {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		res, err := s.db.Collection(recordsCollection).
			DeleteMany(ctx, bson.M{"collection": collection, "source": source})
		if err != nil {
			return err
		}
		removed = int(res.DeletedCount)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *MongoStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.retry.run(ctx, "delete_collection", func(ctx context.Context) error {
		if _, err := s.db.Collection(recordsCollection).
			DeleteMany(ctx, bson.M{"collection": collection}); err != nil {
			return err
		}
		_, err := s.db.Collection(metaCollection).
			DeleteOne(ctx, bson.M{"_id": collection})
		return err
	})
}

func (s *MongoStore) Stats(ctx context.Context, collection string) (models.CollectionStats, error) {
	var stats models.CollectionStats

	err := s.retry.run(ctx, "stats", func(ctx context.Context) error {
		meta, err := s.meta(ctx, collection)
		if err != nil {
			return err
		}
		if meta == nil {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		count, err := s.db.Collection(recordsCollection).
			CountDocuments(ctx, bson.M{"collection": collection})
		if err != nil {
			return err
		}

		stats = models.CollectionStats{RecordCount: int(count), Dimension: meta.Dimension}
		return nil
	})
	if err != nil {
		return models.CollectionStats{}, err
	}
	return stats, nil
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string

	err := s.retry.run(ctx, "list_collections", func(ctx context.Context) error {
		cursor, err := s.db.Collection(metaCollection).Find(ctx, bson.M{})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		names = names[:0]
		for cursor.Next(ctx) {
			var meta collectionMeta
			if err := cursor.Decode(&meta); err != nil {
				return err
			}
			names = append(names, meta.Name)
		}
		if err := cursor.Err(); err != nil {
			return err
		}
		sort.Strings(names)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *MongoStore) ListSources(ctx context.Context, collection string) ([]models.SourceStats, error) {
	var stats []models.SourceStats

	err := s.retry.run(ctx, "list_sources", func(ctx context.Context) error {
		meta, err := s.meta(ctx, collection)
		if err != nil {
			return err
		}
		if meta == nil {
			return models.NewError(models.KindCollectionNotFound, "collection %q does not exist", collection)
		}

		cursor, err := s.db.Collection(recordsCollection).Aggregate(ctx, mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"collection": collection}}},
			{{Key: "$group", Value: bson.M{"_id": "$source", "count": bson.M{"$sum": 1}}}},
			{{Key: "$sort", Value: bson.M{"_id": 1}}},
		})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		stats = stats[:0]
		for cursor.Next(ctx) {
			var row struct {
				Source string `bson:"_id"`
				Count  int    `bson:"count"`
			}
			if err := cursor.Decode(&row); err != nil {
				return err
			}
			stats = append(stats, models.SourceStats{Source: row.Source, Count: row.Count})
		}
		return cursor.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
