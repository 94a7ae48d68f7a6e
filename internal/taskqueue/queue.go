package taskqueue

import (
	"container/heap"
	"context"
	"database/sql"
	"sync"
	"time"

	perr "auditor/internal/platform/errors"
	"auditor/internal/platform/logger"
	"auditor/internal/record"
	"auditor/internal/spill"
)

const defaultSleepTime = 100 * time.Millisecond

// Queue is the durable, time-gated priority queue submit drains. The heap
// and the spill store are logically one component: every Put mirrors into
// spill before the task becomes visible in-memory, and every successful Get
// deletes the spilled row at claim time ("delete at claim"; see DESIGN.md
// for why delete-after-success was rejected).
type Queue struct {
	Log logger.Logger

	// SleepTime is the poll interval used when the heap head is not yet due;
	// configurable, default 100ms.
	SleepTime time.Duration

	spill *spill.Store

	mu       sync.Mutex
	cond     *sync.Cond
	h        taskHeap
	inFlight int
	nextSeq  int64

	now func() time.Time
}

// New returns a Queue mirroring every Put/claim into s.
func New(s *spill.Store) *Queue {
	q := &Queue{
		Log:       *logger.Named("taskqueue"),
		SleepTime: defaultSleepTime,
		spill:     s,
		now:       time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start rehydrates the in-memory heap from the spill store, so a restarted
// agent recovers every task it had accepted but not yet claimed.
func (q *Queue) Start(ctx context.Context) error {
	if q.spill == nil {
		return nil
	}
	rows, err := q.spill.GetAll(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, row := range rows {
		t, err := fromRow(row)
		if err != nil {
			q.Log.Warn().Err(err).Str("record_id", row.RecordID).Msg("taskqueue: dropping unrecoverable spilled row")
			continue
		}
		t.seq = q.nextSeq
		q.nextSeq++
		heap.Push(&q.h, t)
	}
	return nil
}

// Put enqueues t, delaying its eligibility by delay (zero means immediately
// eligible), and durably mirrors it into the spill store before it becomes
// visible to Get.
func (q *Queue) Put(ctx context.Context, t *Task, delay time.Duration) error {
	if delay > 0 {
		t.ScheduledAfter = q.now().Add(delay)
	}

	if q.spill != nil {
		row, err := toRow(t)
		if err != nil {
			return err
		}
		if err := q.spill.Put(ctx, row); err != nil {
			return err
		}
	}

	q.mu.Lock()
	t.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, t)
	q.cond.Broadcast()
	q.mu.Unlock()
	return nil
}

// Get blocks until a task is eligible (its ScheduledAfter has passed) and
// returns it, having already deleted its spilled row (delete at claim).
// It peeks the heap head and, if that task is not yet due, leaves it in
// place and waits (at most SleepTime) before looking again, so the common
// case (a ready task at the front) never round-trips through a sleep.
func (q *Queue) Get(ctx context.Context) (*Task, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(q.h) == 0 {
			q.cond.Wait()
			continue
		}

		head := q.h[0]
		now := q.now()
		if head.ready(now) {
			t := heap.Pop(&q.h).(*Task)
			q.inFlight++
			if q.spill != nil {
				q.mu.Unlock()
				err := q.spill.Delete(ctx, t.Record.RecordID, t.Record.SiteID(), int(t.Instruction))
				q.mu.Lock()
				if err != nil {
					q.Log.Warn().Err(err).Str("record_id", t.Record.RecordID).Msg("taskqueue: spill delete at claim failed")
				}
			}
			return t, nil
		}

		wait := head.ScheduledAfter.Sub(now)
		if wait <= 0 || wait > q.sleepTime() {
			wait = q.sleepTime()
		}
		timer := time.AfterFunc(wait, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		q.cond.Wait()
		timer.Stop()
	}
}

func (q *Queue) sleepTime() time.Duration {
	if q.SleepTime <= 0 {
		return defaultSleepTime
	}
	return q.SleepTime
}

// TaskDone acknowledges a claimed task has finished processing (successfully
// or not), for the Join protocol.
func (q *Queue) TaskDone() {
	q.mu.Lock()
	q.inFlight--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Join blocks until the queue is empty and every claimed task has been
// acknowledged via TaskDone, or ctx is cancelled.
func (q *Queue) Join(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) > 0 || q.inFlight > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}

// Len reports the number of tasks currently waiting in the heap (diagnostics).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

func toRow(t *Task) (spill.Row, error) {
	blob := []byte(t.Record.String())
	row := spill.Row{
		RecordID:         t.Record.RecordID,
		SiteID:           t.Record.SiteID(),
		Instruction:      int(t.Instruction),
		RecordBlob:       blob,
		RetriesRemaining: t.RetriesRemaining,
	}
	if !t.ScheduledAfter.IsZero() {
		row.ScheduledAfter = sql.NullInt64{Valid: true, Int64: t.ScheduledAfter.UTC().UnixMicro()}
	}
	return row, nil
}

func fromRow(row spill.Row) (*Task, error) {
	r, err := record.Parse(row.RecordBlob)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "taskqueue: decode spilled record %s", row.RecordID)
	}
	t := &Task{
		Instruction:      Instruction(row.Instruction),
		Record:           r,
		RetriesRemaining: row.RetriesRemaining,
	}
	if row.ScheduledAfter.Valid {
		t.ScheduledAfter = time.UnixMicro(row.ScheduledAfter.Int64).UTC()
	}
	return t, nil
}
