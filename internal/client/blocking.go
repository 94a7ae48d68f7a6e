package client

import (
	"context"
	"time"

	"auditor/internal/query"
	"auditor/internal/record"
)

// Blocking is a synchronous facade over Client, for callers that want a
// plain blocking call instead of the asynchronous primary shape (simple
// CLIs, tests). It delegates every call straight through to the async
// Client, which is itself concurrency-safe once started; Blocking adds no
// locking of its own.
type Blocking struct {
	client *Client
}

// NewBlocking wraps an already-constructed Client.
func NewBlocking(c *Client) *Blocking { return &Blocking{client: c} }

// Start delegates to the wrapped Client.
func (b *Blocking) Start(ctx context.Context) error { return b.client.Start(ctx) }

// Stop delegates to the wrapped Client.
func (b *Blocking) Stop(ctx context.Context) error { return b.client.Stop(ctx) }

// Add delegates to the wrapped Client.
func (b *Blocking) Add(ctx context.Context, r *record.Record) error { return b.client.Add(ctx, r) }

// Update delegates to the wrapped Client.
func (b *Blocking) Update(ctx context.Context, r *record.Record) error {
	return b.client.Update(ctx, r)
}

// AddQueue delegates to the wrapped Client.
func (b *Blocking) AddQueue(ctx context.Context, r *record.Record) error {
	return b.client.AddQueue(ctx, r)
}

// UpdateQueue delegates to the wrapped Client.
func (b *Blocking) UpdateQueue(ctx context.Context, r *record.Record, delay time.Duration) error {
	return b.client.UpdateQueue(ctx, r, delay)
}

// Get delegates to the wrapped Client.
func (b *Blocking) Get(ctx context.Context) ([]*record.Record, error) { return b.client.Get(ctx) }

// GetStartedSince delegates to the wrapped Client.
func (b *Blocking) GetStartedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return b.client.GetStartedSince(ctx, ts)
}

// GetStoppedSince delegates to the wrapped Client.
func (b *Blocking) GetStoppedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return b.client.GetStoppedSince(ctx, ts)
}

// AdvancedQuery delegates to the wrapped Client.
func (b *Blocking) AdvancedQuery(ctx context.Context, q query.Builder) ([]*record.Record, error) {
	return b.client.AdvancedQuery(ctx, q)
}

// HealthCheck delegates to the wrapped Client.
func (b *Blocking) HealthCheck(ctx context.Context) (bool, error) { return b.client.HealthCheck(ctx) }
