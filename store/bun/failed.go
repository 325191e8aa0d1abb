package bunstore

import (
	"context"
	"fmt"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

// InsertFailed stores r and sets its ID.
func (s *Store) InsertFailed(ctx context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return fmt.Errorf("attempts/bun: prepare failed job: %w", err)
	}
	m := toFailedModel(r)
	_, err := s.db.NewInsert().
		Model(m).
		ExcludeColumn("id").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attempts/bun: insert failed job: %w", err)
	}
	r.ID = m.ID
	return nil
}

// FindFailed returns the selected record.
func (s *Store) FindFailed(ctx context.Context, sel failed.Selector) (*failed.Record, error) {
	m := new(failedJobModel)
	err := s.db.NewSelect().Model(m).
		ApplyQueryBuilder(applySelector(sel)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, attempts.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("attempts/bun: find failed job: %w", err)
	}
	return fromFailedModel(m), nil
}

// ListFailed returns matching records, newest first.
func (s *Store) ListFailed(ctx context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	var models []failedJobModel
	q := s.db.NewSelect().Model(&models).
		ApplyQueryBuilder(applyFilter(opts.Filter)).
		Order("failed_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("attempts/bun: list failed jobs: %w", err)
	}

	records := make([]*failed.Record, 0, len(models))
	for i := range models {
		records = append(records, fromFailedModel(&models[i]))
	}
	return records, nil
}

// DeleteFailed removes the selected record.
func (s *Store) DeleteFailed(ctx context.Context, sel failed.Selector) error {
	res, err := s.db.NewDelete().
		Model((*failedJobModel)(nil)).
		ApplyQueryBuilder(applySelector(sel)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attempts/bun: delete failed job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return attempts.ErrFailedJobNotFound
	}
	return nil
}

// DeleteFailedBulk removes matching records and returns how many.
func (s *Store) DeleteFailedBulk(ctx context.Context, f failed.Filter) (int64, error) {
	q := s.db.NewDelete().
		Model((*failedJobModel)(nil)).
		ApplyQueryBuilder(applyFilter(f))
	if f.IsZero() {
		q = q.Where("TRUE")
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("attempts/bun: bulk delete failed jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountFailed returns the number of matching records.
func (s *Store) CountFailed(ctx context.Context, f failed.Filter) (int64, error) {
	count, err := s.db.NewSelect().
		Model((*failedJobModel)(nil)).
		ApplyQueryBuilder(applyFilter(f)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("attempts/bun: count failed jobs: %w", err)
	}
	return int64(count), nil
}
