// Package identity derives a stable key for "the same logical job" from a
// job's type name and payload.
//
// The first candidate field present in the payload becomes the
// discriminator. When none is present the discriminator is a hash of the
// payload with transport-only fields removed. Map key order never affects
// the result.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Identity names one logical job instance across retries and processes.
type Identity struct {
	TypeName      string `json:"type_name"`
	Discriminator string `json:"discriminator"`
}

// String returns "{typeName}:{discriminator}".
func (i Identity) String() string {
	return i.TypeName + ":" + i.Discriminator
}

// IsZero reports whether i was never computed.
func (i Identity) IsZero() bool {
	return i.TypeName == "" && i.Discriminator == ""
}

// DefaultCandidateKeys returns the payload fields tried, in order, as the
// discriminator.
func DefaultCandidateKeys() []string {
	return []string{"id", "idSuratMasuk", "idNaskah", "userId", "jobId", "modelId"}
}

// DefaultTransportFields returns the routing, chaining and scheduling
// fields that never take part in identity.
func DefaultTransportFields() []string {
	return []string{
		"job", "connection", "queue",
		"chainConnection", "chainQueue", "chainCatchCallbacks", "chained",
		"delay", "afterCommit", "middleware",
	}
}

// Deriver computes identities. The zero value is not usable; use
// NewDeriver.
type Deriver struct {
	keys  []string
	strip map[string]struct{}
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithCandidateKeys replaces the ordered candidate key list.
func WithCandidateKeys(keys ...string) Option {
	return func(d *Deriver) {
		if len(keys) > 0 {
			d.keys = append([]string(nil), keys...)
		}
	}
}

// WithTransportFields adds field names that are stripped before hashing.
func WithTransportFields(fields ...string) Option {
	return func(d *Deriver) {
		for _, f := range fields {
			d.strip[f] = struct{}{}
		}
	}
}

// NewDeriver returns a Deriver using the default candidate keys and
// transport fields, modified by opts.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		keys:  DefaultCandidateKeys(),
		strip: make(map[string]struct{}),
	}
	for _, f := range DefaultTransportFields() {
		d.strip[f] = struct{}{}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// WithKeys returns a copy of d that tries keys instead of d's candidate
// list. An empty keys returns d unchanged.
func (d *Deriver) WithKeys(keys []string) *Deriver {
	if len(keys) == 0 {
		return d
	}
	return &Deriver{keys: append([]string(nil), keys...), strip: d.strip}
}

// Keys returns the candidate key list in priority order.
func (d *Deriver) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Compute derives the identity of a job of type typeName with the given
// payload fields. It never fails.
func (d *Deriver) Compute(typeName string, fields map[string]any) Identity {
	remaining := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, skip := d.strip[k]; skip {
			continue
		}
		remaining[k] = v
	}

	for _, key := range d.keys {
		v, ok := remaining[key]
		if !ok || v == nil {
			continue
		}
		return Identity{TypeName: typeName, Discriminator: formatValue(v)}
	}

	return Identity{TypeName: typeName, Discriminator: hashFields(remaining)}
}

// FromPayload decodes a JSON object payload and computes its identity. A
// payload that is not a JSON object is hashed as raw bytes.
func (d *Deriver) FromPayload(typeName string, payload []byte) Identity {
	fields, ok := decodeObject(payload)
	if !ok {
		return Identity{TypeName: typeName, Discriminator: hashBytes(payload)}
	}
	return d.Compute(typeName, fields)
}

var defaultDeriver = NewDeriver()

// Compute derives an identity with the default candidate keys.
func Compute(typeName string, fields map[string]any) Identity {
	return defaultDeriver.Compute(typeName, fields)
}

// FromPayload derives an identity from a JSON payload with the default
// candidate keys.
func FromPayload(typeName string, payload []byte) Identity {
	return defaultDeriver.FromPayload(typeName, payload)
}

func decodeObject(payload []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return fmt.Sprintf("%d", x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

// hashFields hashes the canonical JSON form of fields. encoding/json sorts
// map keys at every depth, which makes the hash independent of insertion
// order.
func hashFields(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", fields))
	}
	return hashBytes(b)
}

func hashBytes(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
