// Package taskqueue implements the durable, time-gated priority queue that
// sits between the client facade and the submission worker pool.
package taskqueue

import (
	"time"

	"auditor/internal/record"
)

// Instruction is a fixed two-value enum, never a string tag: ADD must always
// be dequeued before any UPDATE touching the same record.
type Instruction uint8

const (
	// InstructionAdd registers a new record with the server.
	InstructionAdd Instruction = iota
	// InstructionUpdate amends a record already registered with the server.
	InstructionUpdate
)

func (i Instruction) String() string {
	if i == InstructionUpdate {
		return "update"
	}
	return "add"
}

// Task is one unit of submission work: an instruction to apply, the record
// it applies to, a retry budget, and the earliest time it may be dequeued.
type Task struct {
	Instruction      Instruction
	Record           *record.Record
	RetriesRemaining int
	ScheduledAfter   time.Time

	// index is heap.Interface bookkeeping only, never semantic ordering.
	index int

	// seq breaks ties between two Tasks of equal Instruction by insertion
	// order, FIFO within priority class.
	seq int64
}

// ready reports whether t may be dequeued at instant now.
func (t *Task) ready(now time.Time) bool {
	return t.ScheduledAfter.IsZero() || !t.ScheduledAfter.After(now)
}
