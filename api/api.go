// Package api serves the failed-job operator over HTTP.
//
// Routes (all JSON):
//
//	GET    /v1/failed              list records (queue, older_than_hours, limit, offset)
//	GET    /v1/failed/{id}         show one record by UUID or numeric ID
//	DELETE /v1/failed/{id}         forget one record
//	DELETE /v1/failed              flush matching records (queue, older_than_hours)
//	POST   /v1/failed/retry        re-dispatch records (409 when disabled)
//	POST   /v1/attempts/peek       current attempt count of a job payload
//
// Destructive routes never prompt: the HTTP request is the confirmation.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/operator"
)

// API wires the HTTP handlers for an operator.
type API struct {
	op       *operator.Operator
	logger   *slog.Logger
	retryErr error
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for handler errors.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithRetryDisabled makes POST /v1/failed/retry fail with err without
// touching any record.
func WithRetryDisabled(err error) Option {
	return func(a *API) { a.retryErr = err }
}

// New creates an API over op.
func New(op *operator.Operator, opts ...Option) *API {
	a := &API{op: op, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns an http.Handler with every route registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers every route on mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/failed", a.listFailed)
	mux.HandleFunc("GET /v1/failed/{id}", a.showFailed)
	mux.HandleFunc("DELETE /v1/failed/{id}", a.forgetFailed)
	mux.HandleFunc("DELETE /v1/failed", a.flushFailed)
	mux.HandleFunc("POST /v1/failed/retry", a.retryFailed)
	mux.HandleFunc("POST /v1/attempts/peek", a.peekAttempts)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("api: write response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		a.logger.Error("api: request failed", slog.String("error", err.Error()))
	}
	a.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, attempts.ErrFailedJobNotFound), errors.Is(err, attempts.ErrNoHandler):
		return http.StatusNotFound
	case errors.Is(err, attempts.ErrInvalidRange), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, attempts.ErrConfiguration):
		return http.StatusConflict
	case errors.Is(err, attempts.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, badRequest("invalid %s %q", name, s)
	}
	return n, nil
}
