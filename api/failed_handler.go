package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/operator"
)

const defaultLimit = 20

// FailedJob is the wire form of a failed record. A JSON payload is
// embedded as-is; any other payload is sent as a string.
type FailedJob struct {
	ID               int64           `json:"id"`
	UUID             string          `json:"uuid"`
	TypeName         string          `json:"type_name"`
	Connection       string          `json:"connection"`
	Queue            string          `json:"queue"`
	Payload          json.RawMessage `json:"payload"`
	ExceptionSummary string          `json:"exception_summary"`
	Exception        string          `json:"exception,omitempty"`
	Attempts         int             `json:"attempts"`
	FailedAt         time.Time       `json:"failed_at"`
}

func toFailedJob(r *failed.Record, full bool) FailedJob {
	fj := FailedJob{
		ID:               r.ID,
		UUID:             r.UUID,
		TypeName:         r.TypeName,
		Connection:       r.Connection,
		Queue:            r.Queue,
		Payload:          rawPayload(r.Payload),
		ExceptionSummary: r.ExceptionSummary,
		Attempts:         r.Attempts,
		FailedAt:         r.FailedAt,
	}
	if full {
		fj.Exception = r.Exception
	}
	return fj
}

func rawPayload(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return s
}

// ListFailedResponse is one page of failed records.
type ListFailedResponse struct {
	Records   []FailedJob `json:"records"`
	Total     int64       `json:"total"`
	Remaining int64       `json:"remaining"`
}

func (a *API) listFailed(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	res, err := a.op.List(r.Context(), q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := ListFailedResponse{
		Records:   make([]FailedJob, len(res.Records)),
		Total:     res.Total,
		Remaining: res.Remaining(q.Offset),
	}
	for i, rec := range res.Records {
		out.Records[i] = toFailedJob(rec, false)
	}
	a.writeJSON(w, http.StatusOK, out)
}

func listQuery(r *http.Request) (operator.ListQuery, error) {
	var (
		q   = operator.ListQuery{Queue: r.URL.Query().Get("queue")}
		err error
	)
	if q.OlderThanHours, err = queryInt(r, "older_than_hours", 0); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(r, "limit", defaultLimit); err != nil {
		return q, err
	}
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		return q, err
	}
	return q, nil
}

// ShowFailedResponse is a record with its live attempt state.
type ShowFailedResponse struct {
	FailedJob
	Identity        string `json:"identity"`
	CurrentAttempts int    `json:"current_attempts"`
}

func (a *API) showFailed(w http.ResponseWriter, r *http.Request) {
	d, err := a.op.Show(r.Context(), failed.ParseSelector(r.PathValue("id")))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, ShowFailedResponse{
		FailedJob:       toFailedJob(d.Record, true),
		Identity:        d.Identity.String(),
		CurrentAttempts: d.Attempts,
	})
}

func (a *API) forgetFailed(w http.ResponseWriter, r *http.Request) {
	_, err := a.op.Forget(r.Context(), failed.ParseSelector(r.PathValue("id")), operator.ForgetOpts{Force: true})
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlushResponse reports a bulk purge.
type FlushResponse struct {
	Matched int64 `json:"matched"`
	Deleted int64 `json:"deleted"`
}

func (a *API) flushFailed(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "older_than_hours", 0)
	if err != nil {
		a.writeError(w, err)
		return
	}
	rep, err := a.op.Flush(r.Context(), operator.FlushOpts{
		Queue:          r.URL.Query().Get("queue"),
		OlderThanHours: hours,
		Force:          true,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, FlushResponse{Matched: rep.Matched, Deleted: rep.Deleted})
}

// RetryRequest selects records to re-dispatch. With no IDs and no Range
// every record (narrowed by Queue) is retried.
type RetryRequest struct {
	IDs           []string `json:"ids,omitempty"`
	Range         string   `json:"range,omitempty"`
	Queue         string   `json:"queue,omitempty"`
	ResetAttempts bool     `json:"reset_attempts,omitempty"`
}

// RetryFailure is one record that could not be re-dispatched.
type RetryFailure struct {
	UUID  string `json:"uuid"`
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// RetryResponse reports a retry batch. Jobs maps each re-dispatched
// delivery ID to its queue.
type RetryResponse struct {
	Batch     string         `json:"batch"`
	Selected  int            `json:"selected"`
	Succeeded int            `json:"succeeded"`
	Failed    []RetryFailure `json:"failed,omitempty"`
	Jobs      []string       `json:"jobs,omitempty"`
}

func (a *API) retryFailed(w http.ResponseWriter, r *http.Request) {
	if a.retryErr != nil {
		a.writeError(w, a.retryErr)
		return
	}
	var req RetryRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	rep, err := a.op.Retry(r.Context(), operator.RetryQuery{
		IDs:           req.IDs,
		Range:         req.Range,
		Queue:         req.Queue,
		ResetAttempts: req.ResetAttempts,
		Force:         true,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	out := RetryResponse{
		Batch:     rep.Batch.String(),
		Selected:  rep.Selected,
		Succeeded: rep.Succeeded,
	}
	for _, f := range rep.Failed {
		out.Failed = append(out.Failed, RetryFailure{UUID: f.UUID, ID: f.ID, Error: f.Err.Error()})
	}
	for _, j := range rep.Jobs {
		out.Jobs = append(out.Jobs, j.ID.String())
	}

	status := http.StatusOK
	if rep.Partial() {
		status = http.StatusMultiStatus
	}
	a.writeJSON(w, status, out)
}

// PeekRequest names a job type and payload.
type PeekRequest struct {
	Job     string          `json:"job"`
	Payload json.RawMessage `json:"payload"`
}

// PeekResponse is the identity of a payload and its live attempt count.
type PeekResponse struct {
	Identity string `json:"identity"`
	Attempts int    `json:"attempts"`
}

func (a *API) peekAttempts(w http.ResponseWriter, r *http.Request) {
	var req PeekRequest
	if err := decodeBody(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	if req.Job == "" {
		a.writeError(w, badRequest("job is required"))
		return
	}
	ident, n, err := a.op.Peek(r.Context(), req.Job, req.Payload)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, PeekResponse{Identity: ident.String(), Attempts: n})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
