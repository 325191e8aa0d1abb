// Package queue is the seam between the retry core and the queue
// transport.
//
// The core never talks to a broker directly. Retries and operator
// re-dispatches go through a [Dispatcher], which the host runtime
// supplies. Two are included: queue/memory for tests and queue/redis,
// which writes to Redis lists and delayed sorted sets.
//
// # Rate limiting
//
// [Limiter] wraps any Dispatcher with a token bucket per queue
// (golang.org/x/time/rate). A bulk operator retry of thousands of records
// is then paced instead of flooding the transport:
//
//	d := queue.NewLimiter(redisDispatcher,
//	    queue.Config{Name: "mail", RateLimit: 50, RateBurst: 100},
//	    queue.Config{Name: queue.Wildcard, RateLimit: 200},
//	)
//
// # Codecs
//
// Deliveries travel as an [Envelope], encoded with JSON or MessagePack
// (see [GetCodec]).
package queue
