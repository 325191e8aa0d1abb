package job

import "context"

// Definition is a typed job definition. T is the payload type and must be
// JSON-serializable.
type Definition[T any] struct {
	// Name is the unique type name of this job.
	Name string

	// Handler processes the payload. It is the only customization point of
	// an attempt; retries and failure persistence happen around it.
	Handler func(ctx context.Context, payload T) error

	// Failed, if set, runs once when the job fails terminally. Its errors
	// and panics are reported but never stop the failure from being stored.
	Failed func(ctx context.Context, payload T, cause error) error

	// Opts configures retries, queue, timeout and identity.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// OnFailure sets the terminal-failure hook and returns def.
func (d *Definition[T]) OnFailure(fn func(ctx context.Context, payload T, cause error) error) *Definition[T] {
	d.Failed = fn
	return d
}
