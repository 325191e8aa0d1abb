package failed

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a job that exhausted its attempts. Records are immutable once
// inserted; they are only ever read or deleted.
type Record struct {
	// ID is assigned by the store on insert and increases monotonically.
	ID   int64  `json:"id"`
	UUID string `json:"uuid"`

	TypeName   string `json:"type_name"`
	Connection string `json:"connection"`
	Queue      string `json:"queue"`
	// Payload is stored byte-for-byte as the job carried it.
	Payload []byte `json:"payload"`

	ExceptionSummary string `json:"exception_summary"`
	Exception        string `json:"exception"`
	// Attempts is the attempt count at terminal failure.
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Prepare fills the fields a store must set before writing: a UUIDv7 when
// UUID is empty, FailedAt when zero, and ExceptionSummary when only the
// full exception is known. A nil Payload becomes empty so it never binds
// as SQL NULL. Every backend calls it on insert.
func Prepare(r *Record) error {
	if r.Payload == nil {
		r.Payload = []byte{}
	}
	if r.UUID == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.UUID = u.String()
	}
	if r.FailedAt.IsZero() {
		r.FailedAt = time.Now().UTC()
	}
	if r.ExceptionSummary == "" {
		r.ExceptionSummary = Summarize(r.Exception)
	}
	return nil
}

// Summarize returns the first non-empty line of an exception text.
func Summarize(exception string) string {
	for _, line := range strings.Split(exception, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}

// Describe renders err as a (summary, full exception) pair. Errors that
// carry a stack (a Stack() []byte method anywhere in the chain) have it
// appended to the full text.
func Describe(err error) (summary, full string) {
	if err == nil {
		return "", ""
	}
	full = err.Error()
	var st interface{ Stack() []byte }
	if errors.As(err, &st) {
		if stack := st.Stack(); len(stack) > 0 {
			full += "\n\n" + string(stack)
		}
	}
	return Summarize(full), full
}

// Selector addresses a single record by UUID or by numeric ID.
type Selector struct {
	UUID string
	ID   int64
}

// ByUUID selects a record by UUID.
func ByUUID(u string) Selector { return Selector{UUID: u} }

// ByID selects a record by numeric ID.
func ByID(n int64) Selector { return Selector{ID: n} }

// ParseSelector treats an all-digit string as a numeric ID and anything
// else as a UUID.
func ParseSelector(s string) Selector {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return Selector{ID: n}
	}
	return Selector{UUID: s}
}

// IsZero reports whether the selector addresses nothing.
func (s Selector) IsZero() bool { return s.UUID == "" && s.ID == 0 }

// Match reports whether r is the selected record.
func (s Selector) Match(r *Record) bool {
	if s.UUID != "" {
		return r.UUID == s.UUID
	}
	return s.ID != 0 && r.ID == s.ID
}

func (s Selector) String() string {
	if s.UUID != "" {
		return s.UUID
	}
	return strconv.FormatInt(s.ID, 10)
}
