package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

const failedColumns = `id, uuid, type_name, connection, queue, payload,
	exception_summary, exception, attempts, failed_at`

// InsertFailed stores r and sets its ID.
func (s *Store) InsertFailed(ctx context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return fmt.Errorf("attempts/postgres: prepare failed job: %w", err)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO failed_jobs (
			uuid, type_name, connection, queue, payload,
			exception_summary, exception, attempts, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.UUID, r.TypeName, r.Connection, r.Queue, r.Payload,
		r.ExceptionSummary, r.Exception, r.Attempts, r.FailedAt,
	).Scan(&r.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("attempts/postgres: insert failed job: duplicate uuid %s: %w", r.UUID, err)
		}
		return fmt.Errorf("attempts/postgres: insert failed job: %w", err)
	}
	return nil
}

// FindFailed returns the selected record.
func (s *Store) FindFailed(ctx context.Context, sel failed.Selector) (*failed.Record, error) {
	col, arg := selectorArg(sel)
	row := s.pool.QueryRow(ctx, `SELECT `+failedColumns+` FROM failed_jobs WHERE `+col+` = $1`, arg)

	r, err := scanFailed(row)
	if err != nil {
		if isNoRows(err) {
			return nil, attempts.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("attempts/postgres: find failed job: %w", err)
	}
	return r, nil
}

// ListFailed returns matching records, newest first.
func (s *Store) ListFailed(ctx context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	clause, args := where(opts.Filter)
	query := `SELECT ` + failedColumns + ` FROM failed_jobs` + clause + ` ORDER BY failed_at DESC, id DESC`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attempts/postgres: list failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*failed.Record
	for rows.Next() {
		r, scanErr := scanFailed(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("attempts/postgres: scan failed job row: %w", scanErr)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("attempts/postgres: iterate failed job rows: %w", err)
	}
	return out, nil
}

// DeleteFailed removes the selected record.
func (s *Store) DeleteFailed(ctx context.Context, sel failed.Selector) error {
	col, arg := selectorArg(sel)
	tag, err := s.pool.Exec(ctx, `DELETE FROM failed_jobs WHERE `+col+` = $1`, arg)
	if err != nil {
		return fmt.Errorf("attempts/postgres: delete failed job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attempts.ErrFailedJobNotFound
	}
	return nil
}

// DeleteFailedBulk removes matching records and returns how many.
func (s *Store) DeleteFailedBulk(ctx context.Context, f failed.Filter) (int64, error) {
	clause, args := where(f)
	tag, err := s.pool.Exec(ctx, `DELETE FROM failed_jobs`+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("attempts/postgres: bulk delete failed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountFailed returns the number of matching records.
func (s *Store) CountFailed(ctx context.Context, f failed.Filter) (int64, error) {
	clause, args := where(f)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM failed_jobs`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("attempts/postgres: count failed jobs: %w", err)
	}
	return n, nil
}

func selectorArg(sel failed.Selector) (string, any) {
	if sel.UUID != "" {
		return "uuid", sel.UUID
	}
	return "id", sel.ID
}

// scanFailed scans a single failed_jobs row.
func scanFailed(row pgx.Row) (*failed.Record, error) {
	var r failed.Record
	err := row.Scan(
		&r.ID, &r.UUID, &r.TypeName, &r.Connection, &r.Queue, &r.Payload,
		&r.ExceptionSummary, &r.Exception, &r.Attempts, &r.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	r.FailedAt = r.FailedAt.UTC()
	return &r, nil
}
