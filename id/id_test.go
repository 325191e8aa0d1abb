package id_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/xraph/attempts/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"BatchID", id.NewBatchID, "rtb_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewJobID()
	parsed, err := id.ParseJobID(orig.String())
	if err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip mismatch: %q != %q", parsed, orig)
	}
}

func TestParseWrongPrefix(t *testing.T) {
	b := id.NewBatchID()
	if _, err := id.ParseJobID(b.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestTextRoundTripInJSON(t *testing.T) {
	type envelope struct {
		ID   id.ID `json:"id"`
		Prev id.ID `json:"prev"`
	}
	orig := envelope{ID: id.NewJobID()}
	b, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"id":"` + orig.ID.String() + `","prev":""}`; string(b) != want {
		t.Errorf("json = %s, want %s", b, want)
	}

	var got envelope
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID.String() != orig.ID.String() || !got.Prev.IsNil() {
		t.Errorf("got %+v, want %+v", got, orig)
	}
}

func TestRetryIDsSortAfterOriginal(t *testing.T) {
	first := id.NewJobID()
	time.Sleep(2 * time.Millisecond)
	next := id.NewJobID()
	if next.String() <= first.String() {
		t.Errorf("%s does not sort after %s", next, first)
	}
}
