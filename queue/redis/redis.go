// Package redis is a Dispatcher that writes deliveries to Redis.
//
// Immediate deliveries are RPUSHed onto a list per queue. Delayed ones go
// into a sorted set scored by their due time in Unix milliseconds, and
// Promote moves due entries onto the list atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/queue"
)

var _ queue.Dispatcher = (*Dispatcher)(nil)

// promoteScript moves up to ARGV[2] members scored <= ARGV[1] from the
// delayed set KEYS[1] onto the list KEYS[2].
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('RPUSH', KEYS[2], m)
end
return #due
`)

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithPrefix sets the key prefix. Default "queues:".
func WithPrefix(p string) Option {
	return func(d *Dispatcher) { d.prefix = p }
}

// WithCodec sets the delivery codec. Default JSON.
func WithCodec(c queue.Codec) Option {
	return func(d *Dispatcher) { d.codec = c }
}

// WithConnection stamps every delivery with a connection name.
func WithConnection(name string) Option {
	return func(d *Dispatcher) { d.connection = name }
}

// Dispatcher enqueues job deliveries on Redis.
type Dispatcher struct {
	client     goredis.Cmdable
	codec      queue.Codec
	prefix     string
	connection string
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Dispatcher. The caller owns the client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: client,
		codec:  &queue.JSONCodec{},
		prefix: "queues:",
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// listKey returns the ready list of a queue: queues:{name}
func (d *Dispatcher) listKey(name string) string { return d.prefix + name }

// delayedKey returns the delayed set of a queue: queues:{name}:delayed
func (d *Dispatcher) delayedKey(name string) string { return d.prefix + name + ":delayed" }

// Enqueue encodes j and pushes it, into the delayed set when delay > 0.
func (d *Dispatcher) Enqueue(ctx context.Context, j *job.Job, delay time.Duration) error {
	if d.connection != "" && j.Connection == "" {
		j.Connection = d.connection
	}
	data, err := d.codec.Encode(j)
	if err != nil {
		return fmt.Errorf("attempts/redis queue: encode %s: %w", j.Name, err)
	}

	if delay <= 0 {
		if err := d.client.RPush(ctx, d.listKey(j.Queue), data).Err(); err != nil {
			return fmt.Errorf("attempts/redis queue: push %s: %w", j.Queue, err)
		}
		return nil
	}

	due := d.now().Add(delay).UnixMilli()
	z := goredis.Z{Score: float64(due), Member: data}
	if err := d.client.ZAdd(ctx, d.delayedKey(j.Queue), z).Err(); err != nil {
		return fmt.Errorf("attempts/redis queue: schedule %s: %w", j.Queue, err)
	}
	return nil
}

// Promote moves up to limit due deliveries of queue onto its ready list
// and returns how many moved.
func (d *Dispatcher) Promote(ctx context.Context, name string, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := strconv.FormatInt(d.now().UnixMilli(), 10)
	n, err := promoteScript.Run(ctx, d.client,
		[]string{d.delayedKey(name), d.listKey(name)}, now, limit,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("attempts/redis queue: promote %s: %w", name, err)
	}
	if n > 0 {
		d.logger.Debug("promoted delayed jobs", slog.String("queue", name), slog.Int("count", n))
	}
	return n, nil
}

// Pop removes the next ready delivery of queue, waiting up to timeout.
// It returns (nil, nil) when nothing arrived in time.
func (d *Dispatcher) Pop(ctx context.Context, name string, timeout time.Duration) (*job.Job, error) {
	res, err := d.client.BLPop(ctx, timeout, d.listKey(name)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil //nolint:nilnil // empty queue is not an error
		}
		return nil, fmt.Errorf("attempts/redis queue: pop %s: %w", name, err)
	}
	j, err := d.codec.Decode([]byte(res[1]))
	if err != nil {
		return nil, fmt.Errorf("attempts/redis queue: decode: %w", err)
	}
	return j, nil
}
