package query

// opcode is a tiny total order over comparison operators, used only to keep
// Operator's rendered conditions in a fixed, deterministic sequence, never
// a string tag, the same discipline taskqueue.Instruction follows.
type opcode uint8

const (
	opGt opcode = iota
	opGte
	opLt
	opLte
	opEquals
)

func (o opcode) name() string {
	switch o {
	case opGt:
		return "gt"
	case opGte:
		return "gte"
	case opLt:
		return "lt"
	case opLte:
		return "lte"
	case opEquals:
		return "equals"
	default:
		return "gt"
	}
}

type condition struct {
	op  opcode
	val string
}

// Operator is an immutable, composable comparison predicate. Composing two
// operators (e.g. Gt(v1).Lt(v2)) yields a half-open range; every method
// returns a new Operator rather than mutating the receiver.
type Operator struct {
	conditions []condition
}

func (o Operator) add(op opcode, v Value) Operator {
	out := Operator{conditions: append(append([]condition(nil), o.conditions...), condition{op: op, val: v.String()})}
	return out
}

// Gt returns o composed with an additional "greater than" condition.
func (o Operator) Gt(v Value) Operator { return o.add(opGt, v) }

// Gte returns o composed with an additional "greater than or equal" condition.
func (o Operator) Gte(v Value) Operator { return o.add(opGte, v) }

// Lt returns o composed with an additional "less than" condition.
func (o Operator) Lt(v Value) Operator { return o.add(opLt, v) }

// Lte returns o composed with an additional "less than or equal" condition.
func (o Operator) Lte(v Value) Operator { return o.add(opLte, v) }

// Equals returns o composed with an additional equality condition.
func (o Operator) Equals(v Value) Operator { return o.add(opEquals, v) }

// Gt starts a new Operator chain with a "greater than" condition.
func Gt(v Value) Operator { return Operator{}.Gt(v) }

// Gte starts a new Operator chain with a "greater than or equal" condition.
func Gte(v Value) Operator { return Operator{}.Gte(v) }

// Lt starts a new Operator chain with a "less than" condition.
func Lt(v Value) Operator { return Operator{}.Lt(v) }

// Lte starts a new Operator chain with a "less than or equal" condition.
func Lte(v Value) Operator { return Operator{}.Lte(v) }

// Equals starts a new Operator chain with an equality condition.
func Equals(v Value) Operator { return Operator{}.Equals(v) }

// sortedConditions returns conditions ordered by opcode so two equal
// Operators always render identically regardless of chain call order.
func (o Operator) sortedConditions() []condition {
	out := append([]condition(nil), o.conditions...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].op < out[j-1].op; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// MetaOperator supports "contains": the meta list at a key contains every
// listed string.
type MetaOperator struct {
	values []string
}

// Contains returns a MetaOperator matching records whose meta list at the
// queried key contains every value in vs.
func Contains(vs ...string) MetaOperator {
	return MetaOperator{values: append([]string(nil), vs...)}
}
