package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/retry"
)

// HandlerFunc is a type-erased job handler that accepts the raw payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// FailedFunc is a type-erased terminal-failure hook.
type FailedFunc func(ctx context.Context, payload []byte, cause error) error

// Entry is everything the executor needs to run one job type.
type Entry struct {
	Name         string
	Handler      HandlerFunc
	Failed       FailedFunc
	Policy       retry.Policy
	Queue        string
	RetryQueue   string
	IdentityKeys []string

	decode func(payload []byte) error
}

// Validate reports whether payload decodes into the entry's payload type.
func (e *Entry) Validate(payload []byte) error {
	if e.decode == nil {
		return nil
	}
	return e.decode(payload)
}

// Registry maps job names to entries. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// RegisterDefinition validates def's retry options and registers it,
// replacing any entry with the same name. The typed handler is wrapped in
// a closure that JSON-decodes the payload into T. A payload that does not
// decode fails the attempt with attempts.ErrPayloadCorrupt.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) error {
	if def.Name == "" {
		return fmt.Errorf("%w: job name is empty", attempts.ErrConfiguration)
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: job %q has no handler", attempts.ErrConfiguration, def.Name)
	}
	policy, err := retry.NewPolicy(def.Opts.MaxTries, def.Opts.Backoff, def.Opts.Timeout)
	if err != nil {
		return fmt.Errorf("job %q: %w", def.Name, err)
	}

	decode := func(payload []byte) (T, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return t, fmt.Errorf("%w: job %q: %w", attempts.ErrPayloadCorrupt, def.Name, err)
			}
		}
		return t, nil
	}

	entry := &Entry{
		Name:         def.Name,
		Policy:       policy,
		Queue:        def.Opts.Queue,
		RetryQueue:   def.Opts.RetryQueue,
		IdentityKeys: append([]string(nil), def.Opts.IdentityKeys...),
		Handler: func(ctx context.Context, payload []byte) error {
			t, err := decode(payload)
			if err != nil {
				return err
			}
			return def.Handler(ctx, t)
		},
		decode: func(payload []byte) error {
			_, err := decode(payload)
			return err
		},
	}
	if def.Failed != nil {
		entry.Failed = func(ctx context.Context, payload []byte, cause error) error {
			t, err := decode(payload)
			if err != nil {
				return err
			}
			return def.Failed(ctx, t, cause)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry
	return nil
}

// MustRegister is like RegisterDefinition but panics on error.
func MustRegister[T any](r *Registry, def *Definition[T]) {
	if err := RegisterDefinition(r, def); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Get returns the handler for name.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	return e.Handler, true
}

// Validate checks that name is registered and payload decodes for it.
func (r *Registry) Validate(name string, payload []byte) error {
	e, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", attempts.ErrNoHandler, name)
	}
	return e.Validate(payload)
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
