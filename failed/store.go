package failed

import (
	"context"
	"sort"
	"time"
)

// Filter narrows list, count and bulk delete queries. Zero fields do not
// filter.
type Filter struct {
	// Queue matches records that failed on this queue.
	Queue string
	// TypeName matches records of this job type.
	TypeName string
	// FailedBefore matches records that failed strictly before it.
	FailedBefore time.Time
	// UUIDs matches records whose UUID is listed.
	UUIDs []string
	// IDFrom and IDTo bound the numeric ID, inclusive. Zero is unbounded.
	IDFrom int64
	IDTo   int64
}

// OlderThan sets FailedBefore to hours before now. Non-positive hours
// leave f unchanged.
func (f Filter) OlderThan(hours int, now time.Time) Filter {
	if hours > 0 {
		f.FailedBefore = now.Add(-time.Duration(hours) * time.Hour)
	}
	return f
}

// IsZero reports whether f matches every record.
func (f Filter) IsZero() bool {
	return f.Queue == "" && f.TypeName == "" && f.FailedBefore.IsZero() &&
		len(f.UUIDs) == 0 && f.IDFrom == 0 && f.IDTo == 0
}

// Match reports whether r passes f. Backends that cannot push a filter
// down to their query language apply it in process with Match.
func (f Filter) Match(r *Record) bool {
	if f.Queue != "" && r.Queue != f.Queue {
		return false
	}
	if f.TypeName != "" && r.TypeName != f.TypeName {
		return false
	}
	if !f.FailedBefore.IsZero() && !r.FailedAt.Before(f.FailedBefore) {
		return false
	}
	if f.IDFrom > 0 && r.ID < f.IDFrom {
		return false
	}
	if f.IDTo > 0 && r.ID > f.IDTo {
		return false
	}
	if len(f.UUIDs) > 0 {
		for _, u := range f.UUIDs {
			if u == r.UUID {
				return true
			}
		}
		return false
	}
	return true
}

// ListOpts controls filtering and pagination of ListFailed.
type ListOpts struct {
	Filter
	// Limit is the maximum number of records to return. Zero means no
	// limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
}

// Store is the durable failed-job repository. Lists are ordered by
// FailedAt descending, then ID descending, which is stable for
// pagination.
type Store interface {
	// InsertFailed persists r, assigning r.ID and, via Prepare, r.UUID and
	// r.FailedAt when unset.
	InsertFailed(ctx context.Context, r *Record) error

	// FindFailed returns the selected record or attempts.ErrFailedJobNotFound.
	FindFailed(ctx context.Context, sel Selector) (*Record, error)

	// ListFailed returns records matching opts, newest first.
	ListFailed(ctx context.Context, opts ListOpts) ([]*Record, error)

	// DeleteFailed removes the selected record. A missing record yields
	// attempts.ErrFailedJobNotFound, which callers treat as a normal
	// outcome.
	DeleteFailed(ctx context.Context, sel Selector) error

	// DeleteFailedBulk removes every record matching f and returns how
	// many were removed. Nothing matching is not an error.
	DeleteFailedBulk(ctx context.Context, f Filter) (int64, error)

	// CountFailed returns the number of records matching f.
	CountFailed(ctx context.Context, f Filter) (int64, error)
}

// SortNewestFirst orders records by FailedAt descending, then ID
// descending.
func SortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.FailedAt.Equal(b.FailedAt) {
			return a.FailedAt.After(b.FailedAt)
		}
		return a.ID > b.ID
	})
}

// Page applies offset and limit to an already sorted slice.
func Page(records []*Record, limit, offset int) []*Record {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
