// Package failed holds jobs that exhausted their attempts.
//
// When the last attempt of a job fails, the executor calls
// [Service.Record], which stores the original payload byte-for-byte
// together with the job type, queue, attempt count and exception. Each
// record gets a UUIDv7 and a store-assigned numeric ID; operators may
// address it by either (see [ParseSelector]).
//
// Records are never updated. The operator package deletes them, either
// one at a time, by filter, or after re-dispatching them.
//
// Backends live under store/: memory, redis, postgres, bun, sqlite and
// mongo all implement [Store].
package failed
