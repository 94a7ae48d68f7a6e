package client

import (
	"context"
	"sync"
	"time"

	"auditor/internal/platform/logger"
	"auditor/internal/record"
	"auditor/internal/taskqueue"
)

const defaultSendInterval = 1 * time.Second

// batchKey identifies one coalescing slot: a record identity plus the
// instruction being applied to it.
type batchKey struct {
	recordID    string
	instruction taskqueue.Instruction
}

// Batching is the coalescing facade variant: repeated AddQueue/UpdateQueue
// calls for the same record within one send_interval window collapse to the
// latest record version, trading a small amount of added latency for fewer
// HTTP round trips.
type Batching struct {
	client       *Client
	sendInterval time.Duration

	mu      sync.Mutex
	pending map[batchKey]*record.Record

	stop chan struct{}
	done chan struct{}
}

// NewBatching wraps c, flushing coalesced writes every sendInterval (or
// defaultSendInterval if sendInterval <= 0).
func NewBatching(c *Client, sendInterval time.Duration) *Batching {
	if sendInterval <= 0 {
		sendInterval = defaultSendInterval
	}
	return &Batching{
		client:       c,
		sendInterval: sendInterval,
		pending:      make(map[batchKey]*record.Record),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start starts the wrapped Client and the coalescing flush loop.
func (b *Batching) Start(ctx context.Context) error {
	if err := b.client.Start(ctx); err != nil {
		return err
	}
	go b.flushLoop(ctx)
	return nil
}

// Stop stops the flush loop (flushing whatever is pending one last time)
// and then the wrapped Client.
func (b *Batching) Stop(ctx context.Context) error {
	close(b.stop)
	<-b.done
	b.flush(ctx)
	return b.client.Stop(ctx)
}

func (b *Batching) flushLoop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.sendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.flush(ctx)
		}
	}
}

func (b *Batching) flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[batchKey]*record.Record)
	b.mu.Unlock()

	log := logger.Named("client-batching")
	for key, r := range batch {
		var err error
		switch key.instruction {
		case taskqueue.InstructionAdd:
			err = b.client.AddQueue(ctx, r)
		case taskqueue.InstructionUpdate:
			err = b.client.UpdateQueue(ctx, r, 0)
		}
		if err != nil {
			log.Warn().Err(err).Str("record_id", key.recordID).Msg("batching: failed to flush coalesced write")
		}
	}
}

// AddQueue coalesces r into the current send_interval window.
func (b *Batching) AddQueue(r *record.Record) {
	b.coalesce(taskqueue.InstructionAdd, r)
}

// UpdateQueue coalesces r into the current send_interval window.
func (b *Batching) UpdateQueue(r *record.Record) {
	b.coalesce(taskqueue.InstructionUpdate, r)
}

func (b *Batching) coalesce(instr taskqueue.Instruction, r *record.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[batchKey{recordID: r.RecordID, instruction: instr}] = r
}
