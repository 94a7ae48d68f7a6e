// Package record implements the AUDITOR accounting Record: the wire/domain
// object exchanged between collectors, the client facade, and the server.
package record

import (
	"math"
	"time"

	perr "auditor/internal/platform/errors"
	tim "auditor/internal/platform/time"
	"auditor/internal/platform/validate"
)

// Score is a named scalar weight attached to a Component (e.g. HEPSPEC: 10.5).
// Value has no invariant beyond being finite (no NaN/Inf); that check is
// done in Record.validate since struct tags can't express it directly.
type Score struct {
	Name  string  `json:"name" validate:"required"`
	Value float64 `json:"value"`
}

// WithValue returns a copy of s with Value set to v; unused, kept symmetric
// with Component.WithScore for callers that build Scores standalone.
func (s Score) WithValue(v float64) Score {
	s.Value = v
	return s
}

// Component is a named resource consumed by the record (e.g. Cores, Memory).
type Component struct {
	Name   string  `json:"name" validate:"required"`
	Amount int64   `json:"amount" validate:"gte=0"`
	Scores []Score `json:"scores,omitempty" validate:"dive"`
}

// WithScore returns a copy of c with s appended to Scores.
func (c Component) WithScore(s Score) Component {
	out := c
	out.Scores = append(append([]Score(nil), c.Scores...), s)
	return out
}

// Record is a single unit of accounting data for one job/execution.
//
// record_id is immutable after first ADD; stop_time, when present, must be
// >= start_time; runtime is server-derivable but the client must tolerate
// receiving it back. All timestamps are UTC.
type Record struct {
	RecordID   string              `json:"record_id" validate:"required"`
	Meta       map[string][]string `json:"meta,omitempty"`
	Components []Component         `json:"components,omitempty" validate:"dive"`
	StartTime  time.Time           `json:"start_time" validate:"required"`
	StopTime   *time.Time          `json:"stop_time,omitempty"`
	Runtime    *int64              `json:"runtime,omitempty"`
	UpdatedAt  *time.Time          `json:"updated_at,omitempty"`
}

// New constructs a Record from its required fields. recordID must be
// non-empty and startTime must be non-zero, or ErrInsufficientParameters is
// returned.
func New(recordID string, startTime time.Time) (*Record, error) {
	if recordID == "" || startTime.IsZero() {
		return nil, ErrInsufficientParameters
	}
	r := &Record{
		RecordID:  recordID,
		StartTime: startTime.UTC(),
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithStopTime returns a copy of r with StopTime set to t (normalized to UTC).
func (r *Record) WithStopTime(t time.Time) *Record {
	out := r.clone()
	out.StopTime = tim.Ptr(t.UTC())
	return out
}

// WithRuntime returns a copy of r with Runtime set to seconds.
func (r *Record) WithRuntime(seconds int64) *Record {
	out := r.clone()
	out.Runtime = &seconds
	return out
}

// WithMeta returns a copy of r with values appended to the meta list at key,
// preserving existing values and their order: one key maps to many ordered,
// possibly duplicated values.
func (r *Record) WithMeta(key string, values ...string) *Record {
	out := r.clone()
	if out.Meta == nil {
		out.Meta = map[string][]string{}
	} else {
		m := make(map[string][]string, len(out.Meta))
		for k, v := range out.Meta {
			m[k] = append([]string(nil), v...)
		}
		out.Meta = m
	}
	out.Meta[key] = append(out.Meta[key], values...)
	return out
}

// WithComponent returns a copy of r with c appended to Components.
func (r *Record) WithComponent(c Component) *Record {
	out := r.clone()
	out.Components = append(append([]Component(nil), r.Components...), c)
	return out
}

// SiteID returns meta["site_id"][0], or "" if absent; used to derive task
// identity and site-scoped queries.
func (r *Record) SiteID() string {
	if r == nil {
		return ""
	}
	vs := r.Meta["site_id"]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (r *Record) clone() *Record {
	out := *r
	return &out
}

// validate runs struct validation plus the cross-field invariants struct
// tags can't express (stop_time >= start_time, UTC timestamps).
func (r *Record) validate() error {
	if field, msg, err := validate.Struct(r); err != nil {
		return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "%s: %s", field, msg)
	}
	if r.StartTime.Location() != time.UTC {
		return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "start_time must be UTC")
	}
	if r.StopTime != nil {
		if r.StopTime.Location() != time.UTC {
			return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "stop_time must be UTC")
		}
		if r.StopTime.Before(r.StartTime) {
			return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "stop_time must be >= start_time")
		}
	}
	if r.Runtime != nil && *r.Runtime < 0 {
		return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "runtime must be >= 0")
	}
	for _, c := range r.Components {
		for _, s := range c.Scores {
			if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
				return perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation,
					"component %q score %q value must be finite", c.Name, s.Name)
			}
		}
	}
	return nil
}

// Equal reports whether r and other are structurally equal, including the
// per-key ordering of meta values.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.RecordID != other.RecordID || !r.StartTime.Equal(other.StartTime) {
		return false
	}
	if !timePtrEqual(r.StopTime, other.StopTime) || !timePtrEqual(r.UpdatedAt, other.UpdatedAt) {
		return false
	}
	if !int64PtrEqual(r.Runtime, other.Runtime) {
		return false
	}
	if !metaEqual(r.Meta, other.Meta) {
		return false
	}
	return componentsEqual(r.Components, other.Components)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func metaEqual(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func componentsEqual(a, b []Component) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Amount != b[i].Amount || len(a[i].Scores) != len(b[i].Scores) {
			return false
		}
		for j := range a[i].Scores {
			if a[i].Scores[j] != b[i].Scores[j] {
				return false
			}
		}
	}
	return true
}
