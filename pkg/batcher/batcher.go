// Package batcher decouples persistence from ingestion. Records are queued
// without blocking and written to storage in small batches by one worker.
package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
)

type Config struct {
	QueueSize     int           `env:"QUEUE_SIZE"     envDefault:"10000"`
	BatchSize     int           `env:"BATCH_SIZE"     envDefault:"10"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"1s"`
	MaxRetries    uint          `env:"MAX_RETRIES"    envDefault:"3"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"200ms"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:     10000,
		BatchSize:     10,
		FlushInterval: time.Second,
		MaxRetries:    3,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Writer is the subset of storage.Repository the batcher writes through.
type Writer interface {
	SaveTags(ctx context.Context, rows []query.TagRow) error
	SaveStatuses(ctx context.Context, rows []query.StatusRow) error
}

// Record holds exactly one of a tag value or a device status row.
type Record struct {
	tag    *query.TagRow
	status *query.StatusRow
}

func TagRecord(row query.TagRow) Record {
	return Record{tag: &row}
}

func StatusRecord(row query.StatusRow) Record {
	return Record{status: &row}
}

// Metrics counts records that never reach storage.
type Metrics struct {
	// Dropped counts records rejected because the queue was full.
	Dropped metrics.Counter
	// Lost counts records discarded after the retry budget ran out.
	Lost metrics.Counter
	// Written counts rows handed to storage successfully.
	Written metrics.Counter
}

func discardMetrics() Metrics {
	return Metrics{
		Dropped: discard.NewCounter(),
		Lost:    discard.NewCounter(),
		Written: discard.NewCounter(),
	}
}

type Batcher struct {
	cfg     Config
	writer  Writer
	logger  *slog.Logger
	metrics Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Record

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts the background worker. Zero config fields take their defaults.
func New(cfg Config, writer Writer, m *Metrics, logger *slog.Logger) *Batcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	mm := discardMetrics()
	if m != nil {
		if m.Dropped != nil {
			mm.Dropped = m.Dropped
		}
		if m.Lost != nil {
			mm.Lost = m.Lost
		}
		if m.Written != nil {
			mm.Written = m.Written
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Batcher{
		cfg:     cfg,
		writer:  writer,
		logger:  logger,
		metrics: mm,
		queue:   make(chan Record, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.run()

	return b
}

// Enqueue never blocks. It reports false when the record was dropped
// because the queue is full or the batcher is closed.
func (b *Batcher) Enqueue(r Record) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.queue <- r:
		return true
	default:
		b.metrics.Dropped.Add(1)
		b.logger.Warn("persistence queue full, dropping record", slog.Int("capacity", cap(b.queue)))

		return false
	}
}

// Len returns the number of queued records not yet picked up by the worker.
func (b *Batcher) Len() int {
	return len(b.queue)
}

// Close stops accepting records and waits for queued ones to be flushed.
// If ctx expires first, in-flight retries are abandoned.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		b.cancel()

		return nil
	case <-ctx.Done():
		b.cancel()
		<-b.done

		return ctx.Err()
	}
}

func (b *Batcher) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, b.cfg.BatchSize)
	for {
		select {
		case r, ok := <-b.queue:
			if !ok {
				b.flush(batch)

				return
			}
			batch = append(batch, r)
			if len(batch) >= b.cfg.BatchSize {
				b.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (b *Batcher) flush(batch []Record) {
	if len(batch) == 0 {
		return
	}

	var (
		tags     []query.TagRow
		statuses []query.StatusRow
	)
	for _, r := range batch {
		switch {
		case r.tag != nil:
			tags = append(tags, *r.tag)
		case r.status != nil:
			statuses = append(statuses, *r.status)
		}
	}

	if len(statuses) > 0 {
		b.save("status", len(statuses), func(ctx context.Context) error {
			return b.writer.SaveStatuses(ctx, statuses)
		})
	}
	if len(tags) > 0 {
		b.save("tag", len(tags), func(ctx context.Context) error {
			return b.writer.SaveTags(ctx, tags)
		})
	}
}

func (b *Batcher) save(kind string, n int, write func(ctx context.Context) error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.RetryInterval

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		if err := write(b.ctx); err != nil {
			if attempt <= int(b.cfg.MaxRetries) {
				b.logger.Warn("failed to persist batch, retrying",
					slog.String("kind", kind),
					slog.Int("attempt", attempt),
					slog.Any("error", err),
				)
			}

			return struct{}{}, err
		}

		return struct{}{}, nil
	}

	_, err := backoff.Retry(b.ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(b.cfg.MaxRetries+1))
	if err != nil {
		b.metrics.Lost.Add(float64(n))
		b.logger.Error("dropping batch after retries",
			slog.String("kind", kind),
			slog.Int("lost_rows", n),
			slog.Any("error", fmt.Errorf("%w: %w", pkgerrors.ErrStorageWrite, err)),
		)

		return
	}
	b.metrics.Written.Add(float64(n))
}
