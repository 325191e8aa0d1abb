package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Incr increments the counter at key, starting over at 1 when it is
// absent or expired, and pushes its expiry to now+ttl.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	update := mongod.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "count", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gt", Value: bson.A{"$expires_at", now}}},
				bson.D{{Key: "$add", Value: bson.A{"$count", int64(1)}}},
				int64(1),
			}}}},
			{Key: "expires_at", Value: now.Add(ttl)},
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var m counterModel
	err := s.db.Collection(colAttempts).FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&m)
	if mongod.IsDuplicateKeyError(err) {
		// Two upserts raced on a new key; the loser retries as an update.
		err = s.db.Collection(colAttempts).FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&m)
	}
	if err != nil {
		return 0, fmt.Errorf("attempts/mongo: incr %s: %w", key, err)
	}
	return m.Count, nil
}

// Delete removes the counter at key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Collection(colAttempts).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("attempts/mongo: delete %s: %w", key, err)
	}
	return nil
}

// Get returns the live counter at key.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	var m counterModel
	err := s.db.Collection(colAttempts).FindOne(ctx, bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": s.now()},
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("attempts/mongo: get %s: %w", key, err)
	}
	return m.Count, true, nil
}
