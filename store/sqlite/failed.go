package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

// timeLayout is fixed width so text comparison orders like time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

const failedColumns = `id, uuid, type_name, connection, queue, payload,
	exception_summary, exception, attempts, failed_at`

// InsertFailed stores r and sets its ID.
func (s *Store) InsertFailed(ctx context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return fmt.Errorf("attempts/sqlite: prepare failed job: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_jobs (
			uuid, type_name, connection, queue, payload,
			exception_summary, exception, attempts, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, r.TypeName, r.Connection, r.Queue, r.Payload,
		r.ExceptionSummary, r.Exception, r.Attempts, formatTime(r.FailedAt),
	)
	if err != nil {
		return fmt.Errorf("attempts/sqlite: insert failed job: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("attempts/sqlite: insert failed job id: %w", err)
	}
	return nil
}

// FindFailed returns the selected record.
func (s *Store) FindFailed(ctx context.Context, sel failed.Selector) (*failed.Record, error) {
	col, arg := selectorArg(sel)
	row := s.db.QueryRowContext(ctx, `SELECT `+failedColumns+` FROM failed_jobs WHERE `+col+` = ?`, arg)

	r, err := scanFailed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, attempts.ErrFailedJobNotFound
		}
		return nil, fmt.Errorf("attempts/sqlite: find failed job: %w", err)
	}
	return r, nil
}

// ListFailed returns matching records, newest first.
func (s *Store) ListFailed(ctx context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	clause, args := where(opts.Filter)
	query := `SELECT ` + failedColumns + ` FROM failed_jobs` + clause + ` ORDER BY failed_at DESC, id DESC`

	switch {
	case opts.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	case opts.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attempts/sqlite: list failed jobs: %w", err)
	}
	defer rows.Close()

	var out []*failed.Record
	for rows.Next() {
		r, scanErr := scanFailed(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("attempts/sqlite: scan failed job row: %w", scanErr)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attempts/sqlite: iterate failed job rows: %w", err)
	}
	return out, nil
}

// DeleteFailed removes the selected record.
func (s *Store) DeleteFailed(ctx context.Context, sel failed.Selector) error {
	col, arg := selectorArg(sel)
	res, err := s.db.ExecContext(ctx, `DELETE FROM failed_jobs WHERE `+col+` = ?`, arg)
	if err != nil {
		return fmt.Errorf("attempts/sqlite: delete failed job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attempts.ErrFailedJobNotFound
	}
	return nil
}

// DeleteFailedBulk removes matching records and returns how many.
func (s *Store) DeleteFailedBulk(ctx context.Context, f failed.Filter) (int64, error) {
	clause, args := where(f)
	res, err := s.db.ExecContext(ctx, `DELETE FROM failed_jobs`+clause, args...)
	if err != nil {
		return 0, fmt.Errorf("attempts/sqlite: bulk delete failed jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("attempts/sqlite: bulk delete failed jobs: %w", err)
	}
	return n, nil
}

// CountFailed returns the number of matching records.
func (s *Store) CountFailed(ctx context.Context, f failed.Filter) (int64, error) {
	clause, args := where(f)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_jobs`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("attempts/sqlite: count failed jobs: %w", err)
	}
	return n, nil
}

func selectorArg(sel failed.Selector) (string, any) {
	if sel.UUID != "" {
		return "uuid", sel.UUID
	}
	return "id", sel.ID
}

// where renders f as a WHERE clause with ? placeholders.
func where(f failed.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Queue != "" {
		conds = append(conds, "queue = ?")
		args = append(args, f.Queue)
	}
	if f.TypeName != "" {
		conds = append(conds, "type_name = ?")
		args = append(args, f.TypeName)
	}
	if !f.FailedBefore.IsZero() {
		conds = append(conds, "failed_at < ?")
		args = append(args, formatTime(f.FailedBefore))
	}
	if f.IDFrom > 0 {
		conds = append(conds, "id >= ?")
		args = append(args, f.IDFrom)
	}
	if f.IDTo > 0 {
		conds = append(conds, "id <= ?")
		args = append(args, f.IDTo)
	}
	if len(f.UUIDs) > 0 {
		conds = append(conds, "uuid IN (?"+strings.Repeat(", ?", len(f.UUIDs)-1)+")")
		for _, u := range f.UUIDs {
			args = append(args, u)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFailed(row scanner) (*failed.Record, error) {
	var (
		r        failed.Record
		failedAt string
	)
	err := row.Scan(
		&r.ID, &r.UUID, &r.TypeName, &r.Connection, &r.Queue, &r.Payload,
		&r.ExceptionSummary, &r.Exception, &r.Attempts, &failedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.FailedAt, err = parseTime(failedAt); err != nil {
		return nil, fmt.Errorf("parse failed_at %q: %w", failedAt, err)
	}
	return &r, nil
}
