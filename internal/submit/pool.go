// Package submit implements the fixed-size worker pool that drains the
// durable task queue and submits records to the AUDITOR server.
package submit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	perr "auditor/internal/platform/errors"
	"auditor/internal/platform/logger"
	"auditor/internal/record"
	"auditor/internal/taskqueue"
)

// Transport is the narrow seam submit needs from the HTTP layer: one call
// per instruction, returning a *perr.Error classified by code so Pool can
// decide retry vs drop without knowing about HTTP.
type Transport interface {
	Add(ctx context.Context, r *record.Record) error
	Update(ctx context.Context, r *record.Record) error
}

const (
	defaultWorkers          = 4
	defaultDelayBeforeRetry = 5 * time.Second
)

// Options configures a Pool.
type Options struct {
	// Workers is the fixed number of concurrent submission goroutines.
	Workers int

	// DelayBeforeRetry is the backoff applied when a task is requeued after
	// a retryable failure (network error, or a 400 racing an not-yet-
	// committed ADD on UPDATE).
	DelayBeforeRetry time.Duration
}

// Pool is the submission worker pool. It owns no state beyond its
// configuration and a reference to the queue and transport it drains/dials;
// Run spawns Options.Workers goroutines, each looping
// queue.Get -> send -> queue.TaskDone, one goroutine per configured slot
// rather than a semaphore, since the pool size here is fixed rather than
// bursty.
type Pool struct {
	Log logger.Logger

	queue     *taskqueue.Queue
	transport Transport
	opts      Options
}

// New returns a Pool draining q and submitting via t.
func New(q *taskqueue.Queue, t Transport, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.DelayBeforeRetry <= 0 {
		opts.DelayBeforeRetry = defaultDelayBeforeRetry
	}
	return &Pool{
		Log:       *logger.Named("submit"),
		queue:     q,
		transport: t,
		opts:      opts,
	}
}

// Run blocks until ctx is cancelled, running Options.Workers submission
// loops concurrently.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		go func(id string) {
			defer wg.Done()
			p.loop(ctx, id)
		}(uuid.NewString())
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) loop(ctx context.Context, id string) {
	log := p.Log.With().Str("worker", id).Logger()
	for {
		task, err := p.queue.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Warn().Err(err).Msg("queue.Get failed")
			continue
		}

		p.handle(ctx, &log, task)
		p.queue.TaskDone()
	}
}

// handle submits one task and, on a retryable failure, re-enqueues it with
// a decremented retry budget and a future ScheduledAfter. It never blocks
// the caller beyond the submission call itself.
func (p *Pool) handle(ctx context.Context, log *logger.Logger, task *taskqueue.Task) {
	var err error
	switch task.Instruction {
	case taskqueue.InstructionAdd:
		err = p.transport.Add(ctx, task.Record)
	case taskqueue.InstructionUpdate:
		err = p.transport.Update(ctx, task.Record)
	}

	if err == nil {
		log.Debug().Str("record_id", task.Record.RecordID).Str("instruction", task.Instruction.String()).
			Msg("submitted")
		return
	}

	if perr.IsCode(err, perr.ErrorCodeRecordExists) {
		log.Warn().Err(err).Str("record_id", task.Record.RecordID).
			Msg("dropping task: server already has this record")
		return
	}

	if !perr.Retryable(err) {
		log.Warn().Err(err).Str("record_id", task.Record.RecordID).Str("instruction", task.Instruction.String()).
			Msg("dropping task: unclassified/non-retryable failure")
		return
	}

	task.RetriesRemaining--
	if task.RetriesRemaining < 0 {
		log.Warn().Err(err).Str("record_id", task.Record.RecordID).
			Msg("dropping task: retry budget exhausted")
		return
	}

	task.ScheduledAfter = time.Time{} // Put recomputes it from the delay argument
	if putErr := p.queue.Put(ctx, task, p.opts.DelayBeforeRetry); putErr != nil {
		log.Error().Err(putErr).Str("record_id", task.Record.RecordID).Msg("failed to requeue task")
	} else {
		log.Warn().Err(err).Str("record_id", task.Record.RecordID).Int("retries_remaining", task.RetriesRemaining).
			Dur("retry_in", p.opts.DelayBeforeRetry).Msg("requeueing task after retryable failure")
	}
}
