package taskqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"auditor/internal/record"
	"auditor/internal/spill"
)

func newRecord(t *testing.T, id string) *record.Record {
	t.Helper()
	r, err := record.New(id, time.Date(2021, 12, 6, 16, 29, 43, 0, time.UTC))
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return r
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	s := spill.New(filepath.Join(t.TempDir(), "spill.db"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("spill.Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s)
}

func TestGet_ReturnsAddBeforeUpdateForSameRecord(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	r := newRecord(t, "rec-1")

	if err := q.Put(ctx, &Task{Instruction: InstructionUpdate, Record: r}, 0); err != nil {
		t.Fatalf("Put update: %v", err)
	}
	if err := q.Put(ctx, &Task{Instruction: InstructionAdd, Record: r}, 0); err != nil {
		t.Fatalf("Put add: %v", err)
	}

	first, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Instruction != InstructionAdd {
		t.Fatalf("first claimed instruction = %v, want ADD", first.Instruction)
	}
	q.TaskDone()

	second, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second.Instruction != InstructionUpdate {
		t.Fatalf("second claimed instruction = %v, want UPDATE", second.Instruction)
	}
	q.TaskDone()
}

func TestGet_ReturnsBackedOffAddBeforeZeroDelayUpdate(t *testing.T) {
	q := newTestQueue(t)
	q.SleepTime = 10 * time.Millisecond
	ctx := context.Background()
	r := newRecord(t, "rec-1")

	if err := q.Put(ctx, &Task{Instruction: InstructionAdd, Record: r}, 40*time.Millisecond); err != nil {
		t.Fatalf("Put add: %v", err)
	}
	if err := q.Put(ctx, &Task{Instruction: InstructionUpdate, Record: r}, 0); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	first, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Instruction != InstructionAdd {
		t.Fatalf("first claimed instruction = %v, want ADD (still backed off but ahead of a ready UPDATE)", first.Instruction)
	}
	q.TaskDone()

	second, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second.Instruction != InstructionUpdate {
		t.Fatalf("second claimed instruction = %v, want UPDATE", second.Instruction)
	}
	q.TaskDone()
}

func TestGet_HonoursDelay(t *testing.T) {
	q := newTestQueue(t)
	q.SleepTime = 10 * time.Millisecond
	ctx := context.Background()
	r := newRecord(t, "rec-1")

	delay := 80 * time.Millisecond
	start := time.Now()
	if err := q.Put(ctx, &Task{Instruction: InstructionAdd, Record: r}, delay); err != nil {
		t.Fatalf("Put: %v", err)
	}

	task, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < delay-20*time.Millisecond {
		t.Fatalf("Get returned after %v, want at least ~%v", elapsed, delay)
	}
	q.TaskDone()
	_ = task
}

func TestGet_BlocksUntilContextCancelled(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	if err == nil {
		t.Fatalf("expected context error from Get on empty queue")
	}
}

func TestStart_RehydratesFromSpill(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "spill.db")

	s1 := spill.New(path)
	if err := s1.Start(ctx); err != nil {
		t.Fatalf("spill.Start: %v", err)
	}
	q1 := New(s1)
	r := newRecord(t, "rec-1")
	if err := q1.Put(ctx, &Task{Instruction: InstructionAdd, Record: r, RetriesRemaining: 3}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := spill.New(path)
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("spill.Start (reopen): %v", err)
	}
	defer s2.Close()
	q2 := New(s2)
	if err := q2.Start(ctx); err != nil {
		t.Fatalf("Queue.Start: %v", err)
	}
	if q2.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after rehydration", q2.Len())
	}
}

func TestJoin_WaitsForInFlightAndEmptyHeap(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	r := newRecord(t, "rec-1")
	if err := q.Put(ctx, &Task{Instruction: InstructionAdd, Record: r}, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	task, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Join(context.Background()) }()

	select {
	case <-done:
		t.Fatalf("Join returned before TaskDone")
	case <-time.After(20 * time.Millisecond):
	}

	q.TaskDone()
	_ = task

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Join did not return after TaskDone")
	}
}
