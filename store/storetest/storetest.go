// Package storetest is a conformance suite for failed.Store and
// attempt.Counter backends. Each backend's tests call RunFailedStore and
// RunCounter with a factory returning a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
)

// RunFailedStore runs the failed.Store contract against stores from newStore.
func RunFailedStore(t *testing.T, newStore func(t *testing.T) failed.Store) {
	t.Helper()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, s failed.Store) []*failed.Record {
		t.Helper()
		var out []*failed.Record
		for i, q := range []string{"A", "A", "A", "B", "B"} {
			r := &failed.Record{
				TypeName:  fmt.Sprintf("job-%s", q),
				Queue:     q,
				Payload:   []byte(fmt.Sprintf(`{"id":%d}`, i)),
				Exception: "boom\ntrace",
				Attempts:  3,
				FailedAt:  base.Add(time.Duration(i) * time.Hour),
			}
			if err := s.InsertFailed(context.Background(), r); err != nil {
				t.Fatalf("InsertFailed: %v", err)
			}
			out = append(out, r)
		}
		return out
	}

	t.Run("InsertAssignsIdentifiers", func(t *testing.T) {
		s := newStore(t)
		recs := seed(t, s)
		for i := 1; i < len(recs); i++ {
			if recs[i].ID <= recs[i-1].ID {
				t.Fatalf("ids not increasing: %d then %d", recs[i-1].ID, recs[i].ID)
			}
			if recs[i].UUID == "" || recs[i].UUID == recs[i-1].UUID {
				t.Fatalf("bad uuid %q", recs[i].UUID)
			}
		}
		if recs[0].ExceptionSummary != "boom" {
			t.Errorf("summary = %q", recs[0].ExceptionSummary)
		}
	})

	t.Run("FindRoundTrip", func(t *testing.T) {
		s := newStore(t)
		r := seed(t, s)[2]
		ctx := context.Background()

		for _, sel := range []failed.Selector{failed.ByUUID(r.UUID), failed.ByID(r.ID)} {
			got, err := s.FindFailed(ctx, sel)
			if err != nil {
				t.Fatalf("FindFailed(%v): %v", sel, err)
			}
			if string(got.Payload) != string(r.Payload) || got.TypeName != r.TypeName || got.Queue != r.Queue {
				t.Errorf("round trip = %+v, want %+v", got, r)
			}
			if got.Attempts != 3 || got.Exception != "boom\ntrace" || !got.FailedAt.Equal(r.FailedAt) {
				t.Errorf("metadata = %+v", got)
			}
		}

		if _, err := s.FindFailed(ctx, failed.ByUUID("missing")); !errors.Is(err, attempts.ErrFailedJobNotFound) {
			t.Errorf("expected ErrFailedJobNotFound, got %v", err)
		}
	})

	t.Run("EmptyPayloadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		r := &failed.Record{TypeName: "ping", Queue: "A", Exception: "boom"}
		if err := s.InsertFailed(ctx, r); err != nil {
			t.Fatalf("InsertFailed with nil payload: %v", err)
		}
		got, err := s.FindFailed(ctx, failed.ByUUID(r.UUID))
		if err != nil {
			t.Fatalf("FindFailed: %v", err)
		}
		if len(got.Payload) != 0 || got.TypeName != "ping" {
			t.Errorf("round trip = %+v", got)
		}
	})

	t.Run("ListOrderFilterPage", func(t *testing.T) {
		s := newStore(t)
		recs := seed(t, s)
		ctx := context.Background()

		all, err := s.ListFailed(ctx, failed.ListOpts{})
		if err != nil {
			t.Fatalf("ListFailed: %v", err)
		}
		if len(all) != 5 || all[0].UUID != recs[4].UUID || all[4].UUID != recs[0].UUID {
			t.Fatalf("order wrong: %d records", len(all))
		}

		a, _ := s.ListFailed(ctx, failed.ListOpts{Filter: failed.Filter{Queue: "A"}, Limit: 2, Offset: 1})
		if len(a) != 2 || a[0].UUID != recs[1].UUID || a[1].UUID != recs[0].UUID {
			t.Errorf("page of A = %v", uuids(a))
		}

		old, _ := s.ListFailed(ctx, failed.ListOpts{Filter: failed.Filter{FailedBefore: base.Add(2 * time.Hour)}})
		if len(old) != 2 {
			t.Errorf("older than = %d, want 2", len(old))
		}

		rng, _ := s.ListFailed(ctx, failed.ListOpts{Filter: failed.Filter{IDFrom: recs[1].ID, IDTo: recs[3].ID}})
		if len(rng) != 3 {
			t.Errorf("range = %d, want 3", len(rng))
		}

		byUUID, _ := s.ListFailed(ctx, failed.ListOpts{Filter: failed.Filter{UUIDs: []string{recs[0].UUID, recs[4].UUID}}})
		if len(byUUID) != 2 {
			t.Errorf("by uuid = %d, want 2", len(byUUID))
		}
	})

	t.Run("Count", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		ctx := context.Background()
		if n, _ := s.CountFailed(ctx, failed.Filter{}); n != 5 {
			t.Errorf("count = %d, want 5", n)
		}
		if n, _ := s.CountFailed(ctx, failed.Filter{Queue: "B"}); n != 2 {
			t.Errorf("count B = %d, want 2", n)
		}
		if n, _ := s.CountFailed(ctx, failed.Filter{TypeName: "job-A"}); n != 3 {
			t.Errorf("count job-A = %d, want 3", n)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		r := seed(t, s)[0]
		ctx := context.Background()

		if err := s.DeleteFailed(ctx, failed.ByUUID(r.UUID)); err != nil {
			t.Fatalf("DeleteFailed: %v", err)
		}
		if err := s.DeleteFailed(ctx, failed.ByUUID(r.UUID)); !errors.Is(err, attempts.ErrFailedJobNotFound) {
			t.Errorf("second delete: expected ErrFailedJobNotFound, got %v", err)
		}
		if n, _ := s.CountFailed(ctx, failed.Filter{}); n != 4 {
			t.Errorf("count = %d, want 4", n)
		}
	})

	t.Run("DeleteBulk", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		ctx := context.Background()

		n, err := s.DeleteFailedBulk(ctx, failed.Filter{Queue: "A"})
		if err != nil || n != 3 {
			t.Fatalf("DeleteFailedBulk = %d, %v; want 3", n, err)
		}
		n, err = s.DeleteFailedBulk(ctx, failed.Filter{Queue: "A"})
		if err != nil || n != 0 {
			t.Fatalf("repeat DeleteFailedBulk = %d, %v; want 0", n, err)
		}
		if left, _ := s.CountFailed(ctx, failed.Filter{}); left != 2 {
			t.Errorf("left = %d, want 2", left)
		}
	})
}

// RunCounter runs the attempt.Counter contract against counters from
// newCounter.
func RunCounter(t *testing.T, newCounter func(t *testing.T) attempt.Counter) {
	t.Helper()

	t.Run("IncrGetDelete", func(t *testing.T) {
		c := newCounter(t)
		ctx := context.Background()

		if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
			t.Fatalf("Get on absent = %v, %v", ok, err)
		}
		for want := int64(1); want <= 3; want++ {
			n, err := c.Incr(ctx, "k", time.Hour)
			if err != nil || n != want {
				t.Fatalf("Incr = %d, %v; want %d", n, err, want)
			}
		}
		if n, ok, _ := c.Get(ctx, "k"); !ok || n != 3 {
			t.Fatalf("Get = %d, %v; want 3", n, ok)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
		if n, _ := c.Incr(ctx, "k", time.Hour); n != 1 {
			t.Fatalf("Incr after delete = %d, want 1", n)
		}
	})

	t.Run("ConcurrentIncrementsAreDistinct", func(t *testing.T) {
		c := newCounter(t)
		ctx := context.Background()
		const workers = 16

		var (
			mu   sync.Mutex
			seen = map[int64]bool{}
			wg   sync.WaitGroup
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := c.Incr(ctx, "hot", time.Hour)
				if err != nil {
					t.Errorf("Incr: %v", err)
					return
				}
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}()
		}
		wg.Wait()

		if len(seen) != workers {
			t.Fatalf("distinct values = %d, want %d", len(seen), workers)
		}
	})
}

func uuids(recs []*failed.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.UUID
	}
	return out
}
