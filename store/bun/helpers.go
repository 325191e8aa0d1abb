package bunstore

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/xraph/attempts/failed"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// applyFilter adds f's conditions to a select or delete query.
func applyFilter(f failed.Filter) func(bun.QueryBuilder) bun.QueryBuilder {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		if f.Queue != "" {
			q = q.Where("queue = ?", f.Queue)
		}
		if f.TypeName != "" {
			q = q.Where("type_name = ?", f.TypeName)
		}
		if !f.FailedBefore.IsZero() {
			q = q.Where("failed_at < ?", f.FailedBefore.UTC())
		}
		if f.IDFrom > 0 {
			q = q.Where("id >= ?", f.IDFrom)
		}
		if f.IDTo > 0 {
			q = q.Where("id <= ?", f.IDTo)
		}
		if len(f.UUIDs) > 0 {
			q = q.Where("uuid IN (?)", bun.In(f.UUIDs))
		}
		return q
	}
}

func applySelector(sel failed.Selector) func(bun.QueryBuilder) bun.QueryBuilder {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		if sel.UUID != "" {
			return q.Where("uuid = ?", sel.UUID)
		}
		return q.Where("id = ?", sel.ID)
	}
}
