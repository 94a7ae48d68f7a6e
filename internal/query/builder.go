package query

import (
	"fmt"
	"sort"
	"strings"
)

// field is a canonical, sortable query dimension name (never a raw string
// supplied by the caller, so Build()'s field ordering can't drift with
// caller-chosen spelling).
type field struct {
	kind fieldKind
	name string // meta key or component name, empty for simple fields
}

type fieldKind uint8

const (
	fieldRecordID fieldKind = iota
	fieldStartTime
	fieldStopTime
	fieldMeta
	fieldComponent
)

func (f field) sortKey() string {
	switch f.kind {
	case fieldRecordID:
		return "0record_id"
	case fieldStartTime:
		return "1start_time"
	case fieldStopTime:
		return "2stop_time"
	case fieldMeta:
		return "3meta." + f.name
	case fieldComponent:
		return "4component." + f.name
	default:
		return ""
	}
}

func (f field) paramPrefix() string {
	switch f.kind {
	case fieldRecordID:
		return "record_id"
	case fieldStartTime:
		return "start_time"
	case fieldStopTime:
		return "stop_time"
	case fieldMeta:
		return "meta." + f.name
	case fieldComponent:
		return "component." + f.name
	default:
		return ""
	}
}

// predicate is one rendered "field[op]=value" query parameter.
type predicate struct {
	f  field
	op string
	val string
}

// Builder constructs a deterministic query string against the AUDITOR
// records endpoint. Zero value is ready to use; every With* method
// returns a new Builder (copy-on-write), so the order chain methods are
// called in never affects Build()'s output.
type Builder struct {
	equalsRecordID string
	hasRecordID    bool

	predicates []predicate

	sortField string
	sortDesc  bool
	hasSort   bool

	limit    int
	hasLimit bool
}

// WithRecordID restricts the query to an exact record_id match.
func (b Builder) WithRecordID(id string) Builder {
	out := b.clone()
	out.equalsRecordID = id
	out.hasRecordID = true
	return out
}

// WithStartTime adds a comparison against start_time.
func (b Builder) WithStartTime(op Operator) Builder {
	return b.withOperator(field{kind: fieldStartTime}, op)
}

// WithStopTime adds a comparison against stop_time.
func (b Builder) WithStopTime(op Operator) Builder {
	return b.withOperator(field{kind: fieldStopTime}, op)
}

// WithComponentQuery adds a comparison against a named component's amount.
func (b Builder) WithComponentQuery(name string, op Operator) Builder {
	return b.withOperator(field{kind: fieldComponent, name: name}, op)
}

func (b Builder) withOperator(f field, op Operator) Builder {
	out := b.clone()
	for _, c := range op.sortedConditions() {
		out.predicates = append(out.predicates, predicate{f: f, op: c.op.name(), val: c.val})
	}
	return out
}

// WithMetaQuery adds a "contains" match against a meta key's value list.
func (b Builder) WithMetaQuery(key string, op MetaOperator) Builder {
	out := b.clone()
	if len(op.values) == 0 {
		return out
	}
	out.predicates = append(out.predicates, predicate{
		f:   field{kind: fieldMeta, name: key},
		op:  "contains",
		val: strings.Join(op.values, ","),
	})
	return out
}

// SortBy orders results by field, ascending unless desc is true.
func (b Builder) SortBy(field string, desc bool) Builder {
	out := b.clone()
	out.sortField = field
	out.sortDesc = desc
	out.hasSort = true
	return out
}

// Limit caps the number of returned records.
func (b Builder) Limit(n int) Builder {
	if n < 0 {
		n = 0
	}
	out := b.clone()
	out.limit = n
	out.hasLimit = true
	return out
}

func (b Builder) clone() Builder {
	out := b
	out.predicates = append([]predicate(nil), b.predicates...)
	return out
}

// Build renders the query string. Predicates are grouped and sorted by
// field, then by operator, so two Builders reached via different chain
// call orders but the same accumulated predicates always render identically.
func (b Builder) Build() string {
	preds := append([]predicate(nil), b.predicates...)
	sort.SliceStable(preds, func(i, j int) bool {
		ki, kj := preds[i].f.sortKey(), preds[j].f.sortKey()
		if ki != kj {
			return ki < kj
		}
		return preds[i].op < preds[j].op
	})

	var parts []string
	if b.hasRecordID {
		parts = append(parts, fmt.Sprintf("record_id=%s", b.equalsRecordID))
	}
	for _, p := range preds {
		parts = append(parts, fmt.Sprintf("%s[%s]=%s", p.f.paramPrefix(), p.op, p.val))
	}
	if b.hasSort {
		order := "asc"
		if b.sortDesc {
			order = "desc"
		}
		parts = append(parts, fmt.Sprintf("sort_by=%s", b.sortField), fmt.Sprintf("order=%s", order))
	}
	if b.hasLimit {
		parts = append(parts, fmt.Sprintf("limit=%d", b.limit))
	}
	return strings.Join(parts, "&")
}
