package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

// InsertFailed assigns the next ID from the sequence key and writes the
// record hash and both indexes in one transaction.
func (s *Store) InsertFailed(ctx context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return fmt.Errorf("attempts/redis: prepare failed record: %w", err)
	}

	id, err := s.client.Incr(ctx, s.keys.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("attempts/redis: next failed id: %w", err)
	}
	r.ID = id

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.recordKey(id), recordToMap(r))
		pipe.ZAdd(ctx, s.keys.indexKey(), goredis.Z{Score: float64(id), Member: id})
		pipe.HSet(ctx, s.keys.uuidKey(), r.UUID, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("attempts/redis: insert failed: %w", err)
	}
	return nil
}

// FindFailed returns the selected record.
func (s *Store) FindFailed(ctx context.Context, sel failed.Selector) (*failed.Record, error) {
	id, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	vals, err := s.client.HGetAll(ctx, s.keys.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("attempts/redis: find failed: %w", err)
	}
	if len(vals) == 0 {
		return nil, attempts.ErrFailedJobNotFound
	}
	return mapToRecord(vals)
}

// ListFailed loads candidate records by ID range and filters them in
// process.
func (s *Store) ListFailed(ctx context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	records, err := s.scan(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("attempts/redis: list failed: %w", err)
	}
	failed.SortNewestFirst(records)
	return failed.Page(records, opts.Limit, opts.Offset), nil
}

// DeleteFailed removes the selected record and its index entries.
func (s *Store) DeleteFailed(ctx context.Context, sel failed.Selector) error {
	r, err := s.FindFailed(ctx, sel)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		s.queueDelete(ctx, pipe, r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("attempts/redis: delete failed: %w", err)
	}
	return nil
}

// DeleteFailedBulk removes every record matching f in one transaction.
func (s *Store) DeleteFailedBulk(ctx context.Context, f failed.Filter) (int64, error) {
	records, err := s.scan(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("attempts/redis: bulk delete failed: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, r := range records {
			s.queueDelete(ctx, pipe, r)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("attempts/redis: bulk delete failed: %w", err)
	}
	return int64(len(records)), nil
}

// CountFailed returns the number of records matching f. An unfiltered
// count reads the index cardinality directly.
func (s *Store) CountFailed(ctx context.Context, f failed.Filter) (int64, error) {
	if isUnfiltered(f) {
		n, err := s.client.ZCard(ctx, s.keys.indexKey()).Result()
		if err != nil {
			return 0, fmt.Errorf("attempts/redis: count failed: %w", err)
		}
		return n, nil
	}
	records, err := s.scan(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("attempts/redis: count failed: %w", err)
	}
	return int64(len(records)), nil
}

func (s *Store) resolve(ctx context.Context, sel failed.Selector) (int64, error) {
	if sel.UUID == "" {
		if sel.ID <= 0 {
			return 0, attempts.ErrFailedJobNotFound
		}
		return sel.ID, nil
	}
	id, err := s.client.HGet(ctx, s.keys.uuidKey(), sel.UUID).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, attempts.ErrFailedJobNotFound
		}
		return 0, fmt.Errorf("attempts/redis: resolve uuid: %w", err)
	}
	return id, nil
}

// scan reads the IDs in f's range from the index, fetches their hashes
// in one pipeline and keeps the ones matching f.
func (s *Store) scan(ctx context.Context, f failed.Filter) ([]*failed.Record, error) {
	rng := &goredis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if f.IDFrom > 0 {
		rng.Min = strconv.FormatInt(f.IDFrom, 10)
	}
	if f.IDTo > 0 && f.IDTo < math.MaxInt64 {
		rng.Max = strconv.FormatInt(f.IDTo, 10)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.keys.indexKey(), rng).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, raw := range ids {
		id, _ := strconv.ParseInt(raw, 10, 64) //nolint:errcheck // index members are written by InsertFailed
		cmds[i] = pipe.HGetAll(ctx, s.keys.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	records := make([]*failed.Record, 0, len(cmds))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		r, convErr := mapToRecord(vals)
		if convErr != nil {
			s.logger.Warn("skipping unreadable failed record", "error", convErr)
			continue
		}
		if f.Match(r) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *Store) queueDelete(ctx context.Context, pipe goredis.Pipeliner, r *failed.Record) {
	pipe.Del(ctx, s.keys.recordKey(r.ID))
	pipe.ZRem(ctx, s.keys.indexKey(), r.ID)
	pipe.HDel(ctx, s.keys.uuidKey(), r.UUID)
}

func isUnfiltered(f failed.Filter) bool {
	return f.Queue == "" && f.TypeName == "" && f.FailedBefore.IsZero() &&
		len(f.UUIDs) == 0 && f.IDFrom == 0 && f.IDTo == 0
}

func recordToMap(r *failed.Record) map[string]any {
	return map[string]any{
		"id":                r.ID,
		"uuid":              r.UUID,
		"type_name":         r.TypeName,
		"connection":        r.Connection,
		"queue":             r.Queue,
		"payload":           string(r.Payload),
		"exception_summary": r.ExceptionSummary,
		"exception":         r.Exception,
		"attempts":          r.Attempts,
		"failed_at":         r.FailedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToRecord(vals map[string]string) (*failed.Record, error) {
	id, err := strconv.ParseInt(vals["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("attempts/redis: parse id %q: %w", vals["id"], err)
	}
	failedAt, err := time.Parse(time.RFC3339Nano, vals["failed_at"])
	if err != nil {
		return nil, fmt.Errorf("attempts/redis: parse failed_at %q: %w", vals["failed_at"], err)
	}
	n, _ := strconv.Atoi(vals["attempts"]) //nolint:errcheck // zero on absent field is fine

	return &failed.Record{
		ID:               id,
		UUID:             vals["uuid"],
		TypeName:         vals["type_name"],
		Connection:       vals["connection"],
		Queue:            vals["queue"],
		Payload:          []byte(vals["payload"]),
		ExceptionSummary: vals["exception_summary"],
		Exception:        vals["exception"],
		Attempts:         n,
		FailedAt:         failedAt,
	}, nil
}
