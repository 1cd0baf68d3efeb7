package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gamemarket/internal/domain"
)

// DocumentStore persists records into per-source monthly collections, keyed
// by the source-assigned id.
type DocumentStore struct {
	db      *mongo.Database
	logger  *slog.Logger
	indexed map[string]bool
}

func NewDocumentStore(client *mongo.Client, database string, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		db:      client.Database(database),
		logger:  logger.With("store", "mongo"),
		indexed: make(map[string]bool),
	}
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// CollectionName returns the per-source collection for the capture month,
// e.g. steam_top_sellers_202401.
func CollectionName(source string, t time.Time) string {
	return fmt.Sprintf("%s_%s", source, t.Format("200601"))
}

// DocumentID returns the natural key for a record: the source id when
// present, otherwise a composite of name and capture date.
func DocumentID(rec domain.Record) string {
	if id := rec.Str(domain.FieldAppID); id != "" {
		return id
	}
	return fmt.Sprintf("%s_%s", rec.Str(domain.FieldName), rec.Str(domain.FieldCrawlDate))
}

// BuildDocument assembles the storage document: all record fields plus the
// source tag and write timestamps.
func BuildDocument(rec domain.Record, source string, now time.Time) bson.M {
	doc := bson.M{}
	for field, value := range rec {
		doc[field] = value
	}
	doc["_id"] = DocumentID(rec)
	doc["_source"] = source
	doc["_capture_time"] = now
	doc["_created_at"] = now
	return doc
}

// Upsert inserts the record into its monthly collection; on a primary-key
// conflict it updates the existing document's non-metadata fields and sets
// _updated_at, leaving _created_at intact. Returns true on insert.
func (s *DocumentStore) Upsert(ctx context.Context, source string, rec domain.Record) (bool, error) {
	coll := s.db.Collection(CollectionName(source, time.Now()))
	if err := s.ensureIndexes(ctx, coll); err != nil {
		s.logger.Warn("failed to ensure indexes", "collection", coll.Name(), "error", err)
	}

	now := time.Now()
	doc := BuildDocument(rec, source, now)

	_, err := coll.InsertOne(ctx, doc)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, fmt.Errorf("insert into %s: %w", coll.Name(), err)
	}

	update := bson.M{}
	for field, value := range rec {
		update[field] = value
	}
	update["_updated_at"] = now

	_, err = coll.UpdateOne(ctx,
		bson.M{"_id": doc["_id"]},
		bson.M{"$set": update},
	)
	if err != nil {
		return false, fmt.Errorf("update %s in %s: %w", doc["_id"], coll.Name(), err)
	}

	return false, nil
}

// ensureIndexes creates the collection's indexes once per process.
func (s *DocumentStore) ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	if s.indexed[coll.Name()] {
		return nil
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: domain.FieldName, Value: 1}, {Key: domain.FieldCrawlDate, Value: -1}}},
		{Keys: bson.D{{Key: domain.FieldAppID, Value: 1}}},
		{Keys: bson.D{{Key: domain.FieldCrawlDate, Value: -1}}},
		{Keys: bson.D{{Key: domain.FieldDeveloper, Value: 1}}},
		{Keys: bson.D{{Key: domain.FieldPrice, Value: 1}}},
		{Keys: bson.D{{Key: domain.FieldName, Value: "text"}, {Key: domain.FieldDeveloper, Value: "text"}}},
	}

	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return err
	}

	s.indexed[coll.Name()] = true
	return nil
}

// GenreDistribution aggregates genre counts across the given collection,
// most frequent first. Used by the dashboard's genre chart.
func (s *DocumentStore) GenreDistribution(ctx context.Context, collection string, limit int) (map[string]int, error) {
	coll := s.db.Collection(collection)

	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$" + domain.FieldGenres}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + domain.FieldGenres},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate genres: %w", err)
	}
	defer cursor.Close(ctx)

	result := make(map[string]int)
	for cursor.Next(ctx) {
		var row struct {
			Genre string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		result[row.Genre] = row.Count
	}

	return result, cursor.Err()
}

// LatestCollection returns the newest monthly collection for a source, or ""
// when none exists yet.
func (s *DocumentStore) LatestCollection(ctx context.Context, source string) (string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{
		"name": bson.M{"$regex": "^" + source + "_\\d{6}$"},
	})
	if err != nil {
		return "", fmt.Errorf("list collections: %w", err)
	}

	latest := ""
	for _, name := range names {
		if name > latest {
			latest = name
		}
	}
	return latest, nil
}
