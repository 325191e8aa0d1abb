package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
	redisstore "github.com/xraph/attempts/store/redis"
)

func TestIncrUsesTransaction(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)
	ctx := context.Background()

	mock.ExpectTxPipeline()
	mock.ExpectIncr("job_attempt:SendMail:42").SetVal(2)
	mock.ExpectExpire("job_attempt:SendMail:42", 24*time.Hour).SetVal(true)
	mock.ExpectTxPipelineExec()

	n, err := s.Incr(ctx, "job_attempt:SendMail:42", 24*time.Hour)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 2 {
		t.Errorf("Incr = %d, want 2", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)

	mock.ExpectGet("k").RedisNil()

	n, found, err := s.Get(context.Background(), "k")
	if err != nil || found || n != 0 {
		t.Fatalf("Get = (%d, %v, %v), want (0, false, nil)", n, found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetExistingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)

	mock.ExpectGet("k").SetVal("3")

	n, found, err := s.Get(context.Background(), "k")
	if err != nil || !found || n != 3 {
		t.Fatalf("Get = (%d, %v, %v), want (3, true, nil)", n, found, err)
	}
}

func TestDeletePropagatesErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)
	down := errors.New("connection refused")

	mock.ExpectDel("k").SetErr(down)

	if err := s.Delete(context.Background(), "k"); !errors.Is(err, down) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestFindFailedByUUID(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)
	failedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectHGet("attempts:failed_uuids", "u-1").SetVal("3")
	mock.ExpectHGetAll("attempts:failed:3").SetVal(map[string]string{
		"id":                "3",
		"uuid":              "u-1",
		"type_name":         "SendMail",
		"connection":        "redis",
		"queue":             "mail",
		"payload":           `{"id":42}`,
		"exception_summary": "smtp timeout",
		"exception":         "smtp timeout\n...",
		"attempts":          "3",
		"failed_at":         failedAt.Format(time.RFC3339Nano),
	})

	r, err := s.FindFailed(context.Background(), failed.ByUUID("u-1"))
	if err != nil {
		t.Fatalf("FindFailed: %v", err)
	}
	if r.ID != 3 || r.TypeName != "SendMail" || r.Queue != "mail" || string(r.Payload) != `{"id":42}` {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Attempts != 3 || !r.FailedAt.Equal(failedAt) {
		t.Errorf("attempts/failed_at = %d / %s", r.Attempts, r.FailedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindFailedMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db, redisstore.WithKeyPrefix("app:"))

	mock.ExpectHGet("app:failed_uuids", "nope").RedisNil()
	if _, err := s.FindFailed(context.Background(), failed.ByUUID("nope")); !errors.Is(err, attempts.ErrFailedJobNotFound) {
		t.Fatalf("expected ErrFailedJobNotFound, got %v", err)
	}

	mock.ExpectHGetAll("app:failed:9").SetVal(map[string]string{})
	if _, err := s.FindFailed(context.Background(), failed.ByID(9)); !errors.Is(err, attempts.ErrFailedJobNotFound) {
		t.Fatalf("expected ErrFailedJobNotFound, got %v", err)
	}
}

func TestCountFailedUnfiltered(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := redisstore.New(db)

	mock.ExpectZCard("attempts:failed_ids").SetVal(5)

	n, err := s.CountFailed(context.Background(), failed.Filter{})
	if err != nil || n != 5 {
		t.Fatalf("CountFailed = (%d, %v), want (5, nil)", n, err)
	}
}
