package query

import (
	"strconv"
	"time"
)

// Value is a typed predicate operand: a UTC datetime, a non-negative count,
// or a plain string.
type Value struct {
	raw string
}

// DateTime returns a Value rendering t as UTC ISO-8601.
func DateTime(t time.Time) Value { return Value{raw: t.UTC().Format(time.RFC3339)} }

// Count returns a Value rendering a non-negative integer count.
func Count(n int64) Value {
	if n < 0 {
		n = 0
	}
	return Value{raw: strconv.FormatInt(n, 10)}
}

// String returns a Value rendering a plain string verbatim.
func String(s string) Value { return Value{raw: s} }

func (v Value) String() string { return v.raw }
