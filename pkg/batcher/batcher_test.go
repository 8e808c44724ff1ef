package batcher_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/sparkpipe/pkg/batcher"
	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("backend unavailable")

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	tags     [][]query.TagRow
	statuses [][]query.StatusRow
	block    chan struct{}
}

func (w *fakeWriter) SaveTags(ctx context.Context, rows []query.TagRow) error {
	if err := w.fail(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tags = append(w.tags, rows)

	return nil
}

func (w *fakeWriter) SaveStatuses(ctx context.Context, rows []query.StatusRow) error {
	if err := w.fail(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses = append(w.statuses, rows)

	return nil
}

func (w *fakeWriter) fail(ctx context.Context) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures != 0 {
		if w.failures > 0 {
			w.failures--
		}

		return errUnavailable
	}

	return nil
}

func (w *fakeWriter) tagCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.tags {
		n += len(b)
	}

	return n
}

func tag(i int) batcher.Record {
	return batcher.TagRecord(query.TagRow{
		Timestamp: time.Unix(int64(i), 0),
		Group:     "plant",
		Node:      "edge1",
		Device:    "pump",
		Tag:       "temp",
		Value:     fmt.Sprint(i),
		DataType:  "int64",
		Seq:       uint64(i),
	})
}

func newMetrics() (*batcher.Metrics, *generic.Counter, *generic.Counter, *generic.Counter) {
	dropped := generic.NewCounter("dropped")
	lost := generic.NewCounter("lost")
	written := generic.NewCounter("written")

	return &batcher.Metrics{Dropped: dropped, Lost: lost, Written: written}, dropped, lost, written
}

func TestFlushOnBatchSize(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	b := batcher.New(batcher.Config{BatchSize: 5, FlushInterval: time.Hour}, w, nil, slog.Default())

	for i := range 5 {
		require.True(t, b.Enqueue(tag(i)))
	}

	assert.Eventually(t, func() bool { return w.tagCount() == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Close(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.tags, 1)
	for i, row := range w.tags[0] {
		assert.Equal(t, fmt.Sprint(i), row.Value, "arrival order must be preserved")
	}
}

func TestFlushOnInterval(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	b := batcher.New(batcher.Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, w, nil, slog.Default())
	defer b.Close(context.Background())

	require.True(t, b.Enqueue(tag(1)))
	assert.Eventually(t, func() bool { return w.tagCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFlushSplitsByShape(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	b := batcher.New(batcher.Config{BatchSize: 100, FlushInterval: time.Hour}, w, nil, slog.Default())

	require.True(t, b.Enqueue(tag(1)))
	require.True(t, b.Enqueue(batcher.StatusRecord(query.StatusRow{Device: "pump", Status: "online", Seq: 2})))
	require.True(t, b.Enqueue(tag(3)))
	require.NoError(t, b.Close(context.Background()))

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.statuses, 1)
	assert.Equal(t, "online", w.statuses[0][0].Status)
	require.Len(t, w.tags, 1)
	assert.Len(t, w.tags[0], 2)
}

func TestCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	m, _, _, written := newMetrics()
	b := batcher.New(batcher.Config{BatchSize: 7, FlushInterval: time.Hour}, w, m, slog.Default())

	const n = 100
	for i := range n {
		require.True(t, b.Enqueue(tag(i)))
	}
	require.NoError(t, b.Close(context.Background()))

	assert.Equal(t, n, w.tagCount())
	assert.InDelta(t, float64(n), written.Value(), 0)
	assert.False(t, b.Enqueue(tag(n)), "closed batcher must reject records")
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{block: make(chan struct{})}
	m, dropped, _, _ := newMetrics()
	b := batcher.New(batcher.Config{QueueSize: 2, BatchSize: 1, FlushInterval: time.Hour}, w, m, slog.Default())

	// The worker picks the first record and blocks inside the writer.
	require.True(t, b.Enqueue(tag(0)))
	assert.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, time.Millisecond)

	require.True(t, b.Enqueue(tag(1)))
	require.True(t, b.Enqueue(tag(2)))
	assert.False(t, b.Enqueue(tag(3)))
	assert.InDelta(t, 1.0, dropped.Value(), 0)

	close(w.block)
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 3, w.tagCount())
}

func TestRetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		failures int
		retries  uint
		written  int
		lost     float64
		calls    int
	}{
		{
			desc:     "succeeds after transient failures",
			failures: 2,
			retries:  3,
			written:  1,
			calls:    3,
		},
		{
			desc:     "gives up after retry budget",
			failures: -1,
			retries:  2,
			lost:     1,
			calls:    3,
		},
		{
			desc:    "no retries needed",
			retries: 3,
			written: 1,
			calls:   1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			w := &fakeWriter{failures: tc.failures}
			m, _, lost, _ := newMetrics()
			b := batcher.New(batcher.Config{
				BatchSize:     1,
				FlushInterval: time.Hour,
				MaxRetries:    tc.retries,
				RetryInterval: time.Millisecond,
			}, w, m, slog.Default())

			require.True(t, b.Enqueue(tag(1)))
			require.NoError(t, b.Close(context.Background()))

			assert.Equal(t, tc.written, w.tagCount())
			assert.InDelta(t, tc.lost, lost.Value(), 0)
			w.mu.Lock()
			assert.Equal(t, tc.calls, w.calls)
			w.mu.Unlock()
		})
	}
}

func TestCloseHonoursContext(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{block: make(chan struct{})}
	b := batcher.New(batcher.Config{BatchSize: 1, FlushInterval: time.Hour, RetryInterval: time.Millisecond}, w, nil, slog.Default())
	require.True(t, b.Enqueue(tag(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
