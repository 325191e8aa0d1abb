package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/attempts/failed"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// where renders f as a WHERE clause with $n placeholders.
func where(f failed.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Queue != "" {
		add("queue = $%d", f.Queue)
	}
	if f.TypeName != "" {
		add("type_name = $%d", f.TypeName)
	}
	if !f.FailedBefore.IsZero() {
		add("failed_at < $%d", f.FailedBefore)
	}
	if f.IDFrom > 0 {
		add("id >= $%d", f.IDFrom)
	}
	if f.IDTo > 0 {
		add("id <= $%d", f.IDTo)
	}
	if len(f.UUIDs) > 0 {
		add("uuid = ANY($%d)", f.UUIDs)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
