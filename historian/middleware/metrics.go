package middleware

import (
	"context"
	"time"

	"github.com/absmach/sparkpipe/historian"
	"github.com/go-kit/kit/metrics"
)

var _ historian.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     historian.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc historian.Service) historian.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) Topology(ctx context.Context, device string) (historian.Topology, error) {
	defer mm.observe("topology", time.Now())

	return mm.svc.Topology(ctx, device)
}

func (mm *metricsMiddleware) CurrentTime(ctx context.Context) (string, error) {
	defer mm.observe("current-time", time.Now())

	return mm.svc.CurrentTime(ctx)
}

func (mm *metricsMiddleware) CurrentTagValue(ctx context.Context, device, tag string) (historian.TagValue, error) {
	defer mm.observe("current-tag-value", time.Now())

	return mm.svc.CurrentTagValue(ctx, device, tag)
}

func (mm *metricsMiddleware) Status(ctx context.Context, req historian.Request) (historian.Result, error) {
	defer mm.observe("status", time.Now())

	return mm.svc.Status(ctx, req)
}

func (mm *metricsMiddleware) StatusCount(ctx context.Context, req historian.Request) (uint64, error) {
	defer mm.observe("status-count", time.Now())

	return mm.svc.StatusCount(ctx, req)
}

func (mm *metricsMiddleware) TagHistory(ctx context.Context, req historian.Request) (historian.Result, error) {
	defer mm.observe("tag-history", time.Now())

	return mm.svc.TagHistory(ctx, req)
}

func (mm *metricsMiddleware) TagHistoryCount(ctx context.Context, req historian.Request) (uint64, error) {
	defer mm.observe("tag-history-count", time.Now())

	return mm.svc.TagHistoryCount(ctx, req)
}
