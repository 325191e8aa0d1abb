package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/cron"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
	mw "github.com/xraph/attempts/middleware"
	"github.com/xraph/attempts/observability"
	"github.com/xraph/attempts/operator"
	"github.com/xraph/attempts/queue"
	"github.com/xraph/attempts/worker"
)

const instrumentationName = "github.com/xraph/attempts"

// Engine owns the job registry, the executor and the operator surface.
type Engine struct {
	cfg        attempts.Config
	logger     *slog.Logger
	extensions *ext.Registry
	registry   *job.Registry
	deriver    *identity.Deriver

	failedStore failed.Store
	counter     *attempt.Store
	dispatcher  queue.Dispatcher

	executor *worker.Executor
	operator *operator.Operator
	pruner   *cron.Pruner
	mws      []mw.Middleware
	exts     []ext.Extension

	validatePayloads bool
	hookTimeout      time.Duration

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	closers []func() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by the engine's subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = l
	}
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.exts = append(eng.exts, e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithPayloadValidation controls whether operator retries require the
// record's job type to be registered and its payload to decode. Tools that
// manage failed jobs without the application's job types turn it off.
// Enabled by default.
func WithPayloadValidation(enabled bool) Option {
	return func(eng *Engine) {
		eng.validatePayloads = enabled
	}
}

// WithHookTimeout sets the deadline on the context each extension hook
// receives. Defaults to ext.DefaultHookTimeout; zero disables it.
func WithHookTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.hookTimeout = d
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension. If not set, the global
// otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// New creates an Engine from already opened backends. cfg must be valid.
func New(cfg attempts.Config, failedStore failed.Store, counter attempt.Counter, dispatcher queue.Dispatcher, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if failedStore == nil || counter == nil || dispatcher == nil {
		return nil, fmt.Errorf("%w: engine needs a failed store, a counter and a dispatcher", attempts.ErrConfiguration)
	}

	eng := &Engine{
		cfg:         cfg,
		logger:      slog.Default(),
		registry:    job.NewRegistry(),
		failedStore: failedStore,
		counter:     attempt.NewStore(counter, cfg.KeyPrefix),

		validatePayloads: true,
		hookTimeout:      ext.DefaultHookTimeout,
	}
	for _, opt := range opts {
		opt(eng)
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	eng.extensions.SetHookTimeout(eng.hookTimeout)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	eng.deriver = identity.NewDeriver(identity.WithCandidateKeys(cfg.IdentityKeys...))

	eng.dispatcher = dispatcher
	if cfg.Queue.RateLimit > 0 {
		eng.dispatcher = queue.NewLimiter(dispatcher, queue.Config{
			Name:      queue.Wildcard,
			RateLimit: cfg.Queue.RateLimit,
			RateBurst: cfg.Queue.RateBurst,
		})
	}

	// Register the observability extensions.
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(instrumentationName + "/observability")
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(meter))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	if cfg.Logging.Enabled {
		eng.extensions.Register(observability.NewLogExtension(eng.logger))
	}

	// Default middleware stack: tracing → metrics → logging → user middleware.
	// The executor adds recover and the per-job timeout innermost.
	var tracingMw, metricsMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}
	allMws := make([]mw.Middleware, 0, 3+len(eng.mws))
	allMws = append(allMws, tracingMw, metricsMw, mw.Logging(eng.logger))
	allMws = append(allMws, eng.mws...)

	failedSvc := failed.NewService(failedStore, failed.WithLogger(eng.logger))

	eng.executor = worker.NewExecutor(eng.registry, eng.counter, failedSvc, eng.dispatcher,
		worker.WithLogger(eng.logger),
		worker.WithExtensions(eng.extensions),
		worker.WithMiddleware(allMws...),
		worker.WithDeriver(eng.deriver),
		worker.WithTTL(cfg.AttemptTTL),
		worker.WithDefaultQueue(cfg.DefaultQueue),
		worker.WithConnection(cfg.Queue.Connection),
	)

	opOpts := []operator.Option{
		operator.WithLogger(eng.logger),
		operator.WithDeriver(eng.deriver),
		operator.WithExtensions(eng.extensions),
		operator.WithDefaultQueue(cfg.DefaultQueue),
	}
	if eng.validatePayloads {
		opOpts = append(opOpts, operator.WithRegistry(eng.registry))
	}
	eng.operator = operator.New(failedStore, eng.counter, eng.dispatcher, opOpts...)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) error {
	return job.RegisterDefinition(eng.registry, def)
}

// Enqueue JSON-encodes payload and dispatches a first delivery of the
// named job.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}
	return eng.EnqueueRaw(ctx, name, data)
}

// EnqueueRaw dispatches a first delivery with a pre-serialized payload.
// The job is routed to its definition's queue, or the default queue.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte) (*job.Job, error) {
	entry, ok := eng.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", attempts.ErrNoHandler, name)
	}
	q := entry.Queue
	if q == "" {
		q = eng.cfg.DefaultQueue
	}

	j := job.New(name, q, payload)
	j.Connection = eng.cfg.Queue.Connection
	if err := eng.dispatcher.Enqueue(ctx, j, 0); err != nil {
		return nil, fmt.Errorf("enqueue %q: %w", name, err)
	}

	eng.logger.Debug("job enqueued",
		slog.String("job_name", name),
		slog.String("job_id", j.ID.String()),
		slog.String("queue", q),
	)
	return j, nil
}

// Execute runs one delivery of j. See worker.Executor.Execute.
func (eng *Engine) Execute(ctx context.Context, j *job.Job) (*worker.Result, error) {
	return eng.executor.Execute(ctx, j)
}

// Start launches the retention pruner when cfg.Retention names a schedule
// and a positive max age.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.pruner != nil {
		return nil
	}
	r := eng.cfg.Retention
	if r.Schedule == "" || r.MaxAge <= 0 {
		return nil
	}
	p, err := cron.NewPruner(eng.failedStore, r.Schedule, r.MaxAge, eng.logger)
	if err != nil {
		return fmt.Errorf("start retention pruner: %w", err)
	}
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start retention pruner: %w", err)
	}
	eng.pruner = p
	return nil
}

// Stop halts the pruner and notifies extensions of shutdown.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.pruner != nil {
		if err := eng.pruner.Stop(ctx); err != nil {
			eng.logger.Error("retention pruner stop error", slog.String("error", err.Error()))
		}
		eng.pruner = nil
	}
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// Close stops the engine and releases backends opened by Open.
func (eng *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = eng.Stop(ctx)

	var firstErr error
	for i := len(eng.closers) - 1; i >= 0; i-- {
		if err := eng.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	eng.closers = nil
	return firstErr
}

// Config returns the engine configuration.
func (eng *Engine) Config() attempts.Config { return eng.cfg }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Executor returns the attempt executor.
func (eng *Engine) Executor() *worker.Executor { return eng.executor }

// Operator returns the failed-job operator surface.
func (eng *Engine) Operator() *operator.Operator { return eng.operator }

// FailedStore returns the durable failed-job store.
func (eng *Engine) FailedStore() failed.Store { return eng.failedStore }

// Attempts returns the attempt counter store.
func (eng *Engine) Attempts() *attempt.Store { return eng.counter }

// Dispatcher returns the dispatcher retries are handed to, including the
// rate limiter when one is configured.
func (eng *Engine) Dispatcher() queue.Dispatcher { return eng.dispatcher }
