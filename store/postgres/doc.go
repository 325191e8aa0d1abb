// Package postgres implements the failed-job store and the attempt
// counter on PostgreSQL using pgx/v5 with raw SQL.
//
// Failed jobs live in the failed_jobs table with a BIGSERIAL id for range
// selection and a unique uuid. Attempt counters live in job_attempts and
// are incremented with a single INSERT ... ON CONFLICT statement, which
// PostgreSQL executes atomically per key. The schema is created by
// [Store.Migrate] from embedded SQL files.
package postgres
