// Package client implements the AUDITOR facade: the public entry point
// binding the record model, query builder, spill store, task queue, and
// submission pool into one cohesive API.
package client

import (
	"context"
	"time"

	"auditor/internal/platform/logger"
	"auditor/internal/query"
	"auditor/internal/record"
	"auditor/internal/spill"
	"auditor/internal/submit"
	"auditor/internal/taskqueue"
)

const (
	defaultRetries          = 5
	defaultNumWorkers       = 1
	defaultDelayBeforeRetry = 5 * time.Second
	defaultDBPath           = "database.db"
)

// Config collects every option the facade needs to dial and operate the
// submission pipeline end to end.
type Config struct {
	Host             string
	Port             int
	Timeout          time.Duration
	Retries          int
	NumWorkers       int
	DelayBeforeRetry time.Duration
	DBPath           string
	TLS              TLSOptions
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.DelayBeforeRetry <= 0 {
		c.DelayBeforeRetry = defaultDelayBeforeRetry
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	return c
}

// Client is the AUDITOR facade, owning the spill store, the durable task
// queue, the submission pool, and the HTTP transport. The zero value is
// not usable; construct with New.
type Client struct {
	Log logger.Logger

	cfg       Config
	spill     *spill.Store
	queue     *taskqueue.Queue
	pool      *submit.Pool
	transport *Transport

	cancel context.CancelFunc
	runErr chan error
}

// New validates cfg and wires together the facade's components, but does
// not yet open the spill store, start the queue, or spawn workers; that
// happens in Start. With TLS enabled, New reads the CA and client
// certificate files, so a bad TLS configuration fails here.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	transport, err := NewTransport(Options{Host: cfg.Host, Port: cfg.Port, Timeout: cfg.Timeout, TLS: cfg.TLS})
	if err != nil {
		return nil, err
	}

	s := spill.New(cfg.DBPath)
	q := taskqueue.New(s)
	pool := submit.New(q, transport, submit.Options{Workers: cfg.NumWorkers, DelayBeforeRetry: cfg.DelayBeforeRetry})

	return &Client{
		Log:       *logger.Named("client"),
		cfg:       cfg,
		spill:     s,
		queue:     q,
		pool:      pool,
		transport: transport,
	}, nil
}

// Start opens the spill store, replays any persisted tasks into the queue,
// and spawns the worker pool.
func (c *Client) Start(ctx context.Context) error {
	if err := c.spill.Start(ctx); err != nil {
		return err
	}
	if err := c.queue.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runErr = make(chan error, 1)
	go func() { c.runErr <- c.pool.Run(runCtx) }()

	return nil
}

// Stop joins the queue to drain pending work, cancels the worker pool, and
// closes the spill store.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.queue.Join(ctx); err != nil {
		c.Log.Warn().Err(err).Msg("client: stop: queue did not drain before context cancellation")
	}
	if c.cancel != nil {
		c.cancel()
		<-c.runErr
	}
	return c.spill.Close()
}

// Add performs a direct (queue-bypassing) ADD. It propagates a
// RecordExists error verbatim to the caller.
func (c *Client) Add(ctx context.Context, r *record.Record) error {
	return c.transport.Add(ctx, r)
}

// Update performs a direct (queue-bypassing) UPDATE. It propagates a
// RecordNotFound error verbatim to the caller.
func (c *Client) Update(ctx context.Context, r *record.Record) error {
	return c.transport.Update(ctx, r)
}

// AddQueue enqueues an ADD task, fire-and-forget: it returns once the task
// is durably persisted, never once it is submitted; queued writes never
// propagate submission errors back to the caller.
func (c *Client) AddQueue(ctx context.Context, r *record.Record) error {
	return c.queue.Put(ctx, &taskqueue.Task{
		Instruction:      taskqueue.InstructionAdd,
		Record:           r,
		RetriesRemaining: c.cfg.Retries,
	}, 0)
}

// UpdateQueue enqueues an UPDATE task, fire-and-forget, with the given
// delay before it becomes eligible (zero means immediately eligible).
func (c *Client) UpdateQueue(ctx context.Context, r *record.Record, delay time.Duration) error {
	return c.queue.Put(ctx, &taskqueue.Task{
		Instruction:      taskqueue.InstructionUpdate,
		Record:           r,
		RetriesRemaining: c.cfg.Retries,
	}, delay)
}

// Get returns every record known to the server (bypasses the queue).
func (c *Client) Get(ctx context.Context) ([]*record.Record, error) {
	return c.transport.Get(ctx)
}

// GetStartedSince returns every record whose start_time is >= ts.
func (c *Client) GetStartedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return c.transport.GetStartedSince(ctx, ts)
}

// GetStoppedSince returns every record whose stop_time is >= ts.
func (c *Client) GetStoppedSince(ctx context.Context, ts time.Time) ([]*record.Record, error) {
	return c.transport.GetStoppedSince(ctx, ts)
}

// AdvancedQuery runs an arbitrary query.Builder chain against the server.
func (c *Client) AdvancedQuery(ctx context.Context, q query.Builder) ([]*record.Record, error) {
	return c.transport.AdvancedQuery(ctx, q)
}

// HealthCheck reports whether the AUDITOR server is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	return c.transport.HealthCheck(ctx)
}

// QueueLen reports the number of tasks currently waiting in memory
// (diagnostics, used by tests that wait for the queue to drain).
func (c *Client) QueueLen() int { return c.queue.Len() }
