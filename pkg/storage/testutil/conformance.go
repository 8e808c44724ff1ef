package testutil

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/absmach/sparkpipe/pkg/query"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repository mirrors storage.Repository so backends can be exercised without
// an import cycle through the storage factory.
type Repository interface {
	SaveTags(ctx context.Context, rows []query.TagRow) error
	SaveStatuses(ctx context.Context, rows []query.StatusRow) error
	QueryTags(ctx context.Context, q query.Query) ([]query.TagRow, error)
	AggregateTags(ctx context.Context, q query.Query) ([]query.Bucket, error)
	CountTags(ctx context.Context, f query.Filter) (uint64, error)
	QueryStatuses(ctx context.Context, q query.Query) ([]query.StatusRow, error)
	AggregateStatuses(ctx context.Context, q query.Query) ([]query.Bucket, error)
	CountStatuses(ctx context.Context, f query.Filter) (uint64, error)
}

// RunRepositoryTests checks the behaviour every backend must share. Each
// subtest writes under its own random group so a shared database is fine.
func RunRepositoryTests(t *testing.T, repo Repository) {
	t.Helper()

	t.Run("same timestamp across tags does not collide", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		ts := Epoch.Add(time.Minute)
		rows := []query.TagRow{
			TestTag(group, "pump", "temp", "1", ts, 1),
			TestTag(group, "pump", "pressure", "2", ts, 2),
			TestTag(group, "valve", "temp", "3", ts, 3),
			TestTag(group, "pump", "temp", "4", ts, 4),
		}
		require.NoError(t, repo.SaveTags(ctx, rows))

		n, err := repo.CountTags(ctx, query.Filter{}.And(query.Eq(query.FieldGroup, group)))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), n)
	})

	t.Run("replaying the same rows is idempotent", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		rows := Series(group, "pump", "temp", Epoch, time.Minute, 10)
		require.NoError(t, repo.SaveTags(ctx, rows))
		require.NoError(t, repo.SaveTags(ctx, rows))

		n, err := repo.CountTags(ctx, query.Filter{}.And(query.Eq(query.FieldGroup, group)))
		require.NoError(t, err)
		assert.Equal(t, uint64(10), n)
	})

	t.Run("raw query filters orders and limits", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		require.NoError(t, repo.SaveTags(ctx, Series(group, "pump", "temp", Epoch, time.Hour, 60)))
		require.NoError(t, repo.SaveTags(ctx, Series(group, "pump", "flow", Epoch, time.Hour, 60)))

		f := query.Filter{}.And(
			query.Eq(query.FieldGroup, group),
			query.Eq(query.FieldTag, "temp"),
			query.TimeCond(query.OpGe, Epoch.Add(10*time.Minute)),
			query.TimeCond(query.OpLt, Epoch.Add(20*time.Minute)),
		)
		asc, err := repo.QueryTags(ctx, query.Query{Filter: f, Order: query.Asc})
		require.NoError(t, err)
		require.Len(t, asc, 10)
		assert.Equal(t, "10", asc[0].Value)
		assert.True(t, Epoch.Add(10*time.Minute).Equal(asc[0].Timestamp))
		assert.Equal(t, "pump", asc[0].Device)

		desc, err := repo.QueryTags(ctx, query.Query{Filter: f, Order: query.Desc, Limit: 3})
		require.NoError(t, err)
		require.Len(t, desc, 3)
		assert.Equal(t, "19", desc[0].Value)
		assert.Equal(t, "17", desc[2].Value)
	})

	t.Run("like filter", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		require.NoError(t, repo.SaveTags(ctx, []query.TagRow{
			TestTag(group, "pump", "temp_inlet", "1", Epoch, 1),
			TestTag(group, "pump", "temp_outlet", "2", Epoch, 2),
			TestTag(group, "pump", "flow", "3", Epoch, 3),
			TestTag(group, "pump", "Temp_ambient", "4", Epoch, 4),
		}))

		n, err := repo.CountTags(ctx, query.Filter{}.And(
			query.Eq(query.FieldGroup, group),
			query.Condition{Field: query.FieldTag, Op: query.OpLike, Value: "temp%"},
		))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
	})

	t.Run("hourly buckets over ten thousand rows", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		const (
			hours = 10
			n     = 10000
		)
		span := hours * time.Hour
		require.NoError(t, repo.SaveTags(ctx, Series(group, "pump", "temp", Epoch, span, n)))

		buckets, err := repo.AggregateTags(ctx, query.Query{
			Filter: query.Filter{}.And(
				query.Eq(query.FieldGroup, group),
				query.TimeCond(query.OpGe, Epoch),
				query.TimeCond(query.OpLt, Epoch.Add(span)),
			),
			Bucket:    query.Interval{N: 1, Unit: query.Hour},
			Aggregate: query.AggAvg,
			Order:     query.Asc,
		})
		require.NoError(t, err)
		require.LessOrEqual(t, len(buckets), int(math.Ceil(span.Hours())))
		require.Len(t, buckets, hours)

		perBucket := n / hours
		for i, b := range buckets {
			if i > 0 {
				assert.True(t, b.Start.After(buckets[i-1].Start), "bucket %d is not after bucket %d", i, i-1)
			}
			assert.True(t, Epoch.Add(time.Duration(i)*time.Hour).Equal(b.Start), "bucket %d starts at %s", i, b.Start)
			want := float64(i*perBucket) + float64(perBucket-1)/2
			assert.InDelta(t, want, b.Value, 1e-6)
			assert.Equal(t, int64(perBucket), b.Count)
		}
	})

	t.Run("hourly buckets follow an unaligned range start", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		const n = 10000
		start := Epoch.Add(30 * time.Minute)
		span := 10 * time.Hour
		require.NoError(t, repo.SaveTags(ctx, Series(group, "pump", "temp", start, span, n)))

		buckets, err := repo.AggregateTags(ctx, query.Query{
			Filter: query.Filter{}.And(
				query.Eq(query.FieldGroup, group),
				query.TimeCond(query.OpGe, start),
				query.TimeCond(query.OpLt, start.Add(span)),
			),
			Bucket:    query.Interval{N: 1, Unit: query.Hour},
			Aggregate: query.AggCount,
			Order:     query.Asc,
		})
		require.NoError(t, err)
		require.LessOrEqual(t, len(buckets), int(math.Ceil(span.Hours())))
		require.NotEmpty(t, buckets)
		assert.True(t, start.Equal(buckets[0].Start), "first bucket starts at %s", buckets[0].Start)

		var total int64
		for i, b := range buckets {
			if i > 0 {
				assert.True(t, b.Start.After(buckets[i-1].Start), "bucket %d is not after bucket %d", i, i-1)
			}
			total += b.Count
		}
		assert.Equal(t, int64(n), total)
	})

	t.Run("numeric aggregates skip non numeric rows", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		text := TestTag(group, "pump", "mode", "auto", Epoch.Add(time.Minute), 2)
		text.DataType = "string"
		require.NoError(t, repo.SaveTags(ctx, []query.TagRow{
			TestTag(group, "pump", "mode", "4", Epoch, 1),
			text,
			TestTag(group, "pump", "mode", "8", Epoch.Add(2*time.Minute), 3),
		}))

		q := query.Query{
			Filter:    query.Filter{}.And(query.Eq(query.FieldGroup, group)),
			Bucket:    query.Interval{N: 1, Unit: query.Day},
			Aggregate: query.AggMax,
			Order:     query.Asc,
		}
		buckets, err := repo.AggregateTags(ctx, q)
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		assert.InDelta(t, 8.0, buckets[0].Value, 1e-9)

		q.Aggregate = query.AggCount
		buckets, err = repo.AggregateTags(ctx, q)
		require.NoError(t, err)
		require.Len(t, buckets, 1)
		assert.InDelta(t, 3.0, buckets[0].Value, 1e-9)
	})

	t.Run("status rows", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		require.NoError(t, repo.SaveStatuses(ctx, []query.StatusRow{
			TestStatus(group, "pump", "online", Epoch, 1),
			TestStatus(group, "pump", "offline", Epoch.Add(30*time.Minute), 2),
			TestStatus(group, "pump", "online", Epoch.Add(90*time.Minute), 3),
			TestStatus(group, "valve", "online", Epoch, 4),
		}))

		f := query.Filter{}.And(query.Eq(query.FieldGroup, group), query.Eq(query.FieldDevice, "pump"))
		n, err := repo.CountStatuses(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), n)

		rows, err := repo.QueryStatuses(ctx, query.Query{Filter: f, Order: query.Desc})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "online", rows[0].Status)
		assert.True(t, Epoch.Add(90*time.Minute).Equal(rows[0].Timestamp))

		buckets, err := repo.AggregateStatuses(ctx, query.Query{
			Filter:    f,
			Bucket:    query.Interval{N: 1, Unit: query.Hour},
			Aggregate: query.AggCount,
			Order:     query.Asc,
		})
		require.NoError(t, err)
		require.Len(t, buckets, 2)
		assert.InDelta(t, 2.0, buckets[0].Value, 1e-9)
		assert.InDelta(t, 1.0, buckets[1].Value, 1e-9)

		none, err := repo.CountStatuses(ctx, query.Filter{}.And(query.Eq(query.FieldGroup, group), query.Eq(query.FieldDevice, "ghost")))
		require.NoError(t, err)
		assert.Zero(t, none)
	})

	t.Run("reads stop on a cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		group := uuid.NewString()
		require.NoError(t, repo.SaveTags(ctx, Series(group, "pump", "temp", Epoch, time.Hour, 10)))
		cancel()

		f := query.Filter{}.And(query.Eq(query.FieldGroup, group))
		_, err := repo.QueryTags(ctx, query.Query{Filter: f, Order: query.Asc})
		assert.ErrorIs(t, err, context.Canceled)
		_, err = repo.CountTags(ctx, f)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = repo.AggregateStatuses(ctx, query.Query{Filter: f, Bucket: query.Interval{N: 1, Unit: query.Hour}, Aggregate: query.AggCount})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("monthly buckets", func(t *testing.T) {
		ctx := context.Background()
		group := uuid.NewString()
		require.NoError(t, repo.SaveTags(ctx, []query.TagRow{
			TestTag(group, "pump", "temp", "1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 1),
			TestTag(group, "pump", "temp", "3", time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC), 2),
			TestTag(group, "pump", "temp", "10", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 3),
		}))

		buckets, err := repo.AggregateTags(ctx, query.Query{
			Filter:    query.Filter{}.And(query.Eq(query.FieldGroup, group)),
			Bucket:    query.Interval{N: 1, Unit: query.Month},
			Aggregate: query.AggAvg,
			Order:     query.Asc,
		})
		require.NoError(t, err)
		require.Len(t, buckets, 2)
		assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(buckets[0].Start))
		assert.InDelta(t, 2.0, buckets[0].Value, 1e-9)
		assert.True(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Equal(buckets[1].Start))
	})
}
