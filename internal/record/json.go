package record

import (
	"encoding/json"

	perr "auditor/internal/platform/errors"
)

// Parse builds a Record from its canonical JSON wire form, returning
// ErrMalformedRecord on missing keys, wrong types, or non-UTC timestamps.
func Parse(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, perr.Wrapf(ErrMalformedRecord, perr.ErrorCodeValidation, "%v", err)
	}
	if r.RecordID == "" || r.StartTime.IsZero() {
		return nil, ErrMalformedRecord
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// String returns the canonical, deterministic JSON form of r.
func (r *Record) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}
