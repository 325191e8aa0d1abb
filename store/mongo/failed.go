package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

// InsertFailed stores r and sets its ID from the failed_jobs sequence.
func (s *Store) InsertFailed(ctx context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return fmt.Errorf("attempts/mongo: prepare failed job: %w", err)
	}
	seq, err := s.nextSequence(ctx, colFailedJobs)
	if err != nil {
		return err
	}
	r.ID = seq
	if _, err := s.db.Collection(colFailedJobs).InsertOne(ctx, toFailedModel(r)); err != nil {
		r.ID = 0
		return fmt.Errorf("attempts/mongo: insert failed job: %w", err)
	}
	return nil
}

func (s *Store) nextSequence(ctx context.Context, name string) (int64, error) {
	var seq sequenceModel
	err := s.db.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("attempts/mongo: next %s id: %w", name, err)
	}
	return seq.Value, nil
}

// FindFailed returns the selected record.
func (s *Store) FindFailed(ctx context.Context, sel failed.Selector) (*failed.Record, error) {
	var m failedJobModel
	err := s.db.Collection(colFailedJobs).FindOne(ctx, selectorFilter(sel)).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, attempts.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("attempts/mongo: find failed job: %w", err)
	}
	return fromFailedModel(&m), nil
}

// ListFailed returns matching records, newest first.
func (s *Store) ListFailed(ctx context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "failed_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colFailedJobs).Find(ctx, filterDoc(opts.Filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("attempts/mongo: list failed jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []failedJobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("attempts/mongo: list failed jobs decode: %w", err)
	}

	records := make([]*failed.Record, 0, len(models))
	for i := range models {
		records = append(records, fromFailedModel(&models[i]))
	}
	return records, nil
}

// DeleteFailed removes the selected record.
func (s *Store) DeleteFailed(ctx context.Context, sel failed.Selector) error {
	res, err := s.db.Collection(colFailedJobs).DeleteOne(ctx, selectorFilter(sel))
	if err != nil {
		return fmt.Errorf("attempts/mongo: delete failed job: %w", err)
	}
	if res.DeletedCount == 0 {
		return attempts.ErrFailedJobNotFound
	}
	return nil
}

// DeleteFailedBulk removes matching records and returns how many.
func (s *Store) DeleteFailedBulk(ctx context.Context, f failed.Filter) (int64, error) {
	res, err := s.db.Collection(colFailedJobs).DeleteMany(ctx, filterDoc(f))
	if err != nil {
		return 0, fmt.Errorf("attempts/mongo: bulk delete failed jobs: %w", err)
	}
	return res.DeletedCount, nil
}

// CountFailed returns the number of matching records.
func (s *Store) CountFailed(ctx context.Context, f failed.Filter) (int64, error) {
	n, err := s.db.Collection(colFailedJobs).CountDocuments(ctx, filterDoc(f))
	if err != nil {
		return 0, fmt.Errorf("attempts/mongo: count failed jobs: %w", err)
	}
	return n, nil
}

func selectorFilter(sel failed.Selector) bson.M {
	if sel.UUID != "" {
		return bson.M{"uuid": sel.UUID}
	}
	return bson.M{"_id": sel.ID}
}

func filterDoc(f failed.Filter) bson.M {
	doc := bson.M{}
	if f.Queue != "" {
		doc["queue"] = f.Queue
	}
	if f.TypeName != "" {
		doc["type_name"] = f.TypeName
	}
	if !f.FailedBefore.IsZero() {
		doc["failed_at"] = bson.M{"$lt": f.FailedBefore.UTC()}
	}
	if f.IDFrom > 0 || f.IDTo > 0 {
		rng := bson.M{}
		if f.IDFrom > 0 {
			rng["$gte"] = f.IDFrom
		}
		if f.IDTo > 0 {
			rng["$lte"] = f.IDTo
		}
		doc["_id"] = rng
	}
	if len(f.UUIDs) > 0 {
		doc["uuid"] = bson.M{"$in": f.UUIDs}
	}
	return doc
}
