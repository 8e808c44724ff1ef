package middleware

import (
	"context"

	"github.com/absmach/sparkpipe/historian"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ historian.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    historian.Service
}

func Tracing(tracer trace.Tracer, svc historian.Service) historian.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Topology(ctx context.Context, device string) (historian.Topology, error) {
	ctx, span := tm.tracer.Start(ctx, "topology", trace.WithAttributes(
		attribute.String("device", device),
	))
	defer span.End()

	return tm.svc.Topology(ctx, device)
}

func (tm *tracing) CurrentTime(ctx context.Context) (string, error) {
	ctx, span := tm.tracer.Start(ctx, "current-time")
	defer span.End()

	return tm.svc.CurrentTime(ctx)
}

func (tm *tracing) CurrentTagValue(ctx context.Context, device, tag string) (historian.TagValue, error) {
	ctx, span := tm.tracer.Start(ctx, "current-tag-value", trace.WithAttributes(
		attribute.String("device", device),
		attribute.String("tag", tag),
	))
	defer span.End()

	return tm.svc.CurrentTagValue(ctx, device, tag)
}

func (tm *tracing) Status(ctx context.Context, req historian.Request) (historian.Result, error) {
	ctx, span := tm.tracer.Start(ctx, "status", trace.WithAttributes(requestAttributes(req)...))
	defer span.End()

	return tm.svc.Status(ctx, req)
}

func (tm *tracing) StatusCount(ctx context.Context, req historian.Request) (uint64, error) {
	ctx, span := tm.tracer.Start(ctx, "status-count", trace.WithAttributes(requestAttributes(req)...))
	defer span.End()

	return tm.svc.StatusCount(ctx, req)
}

func (tm *tracing) TagHistory(ctx context.Context, req historian.Request) (historian.Result, error) {
	ctx, span := tm.tracer.Start(ctx, "tag-history", trace.WithAttributes(requestAttributes(req)...))
	defer span.End()

	return tm.svc.TagHistory(ctx, req)
}

func (tm *tracing) TagHistoryCount(ctx context.Context, req historian.Request) (uint64, error) {
	ctx, span := tm.tracer.Start(ctx, "tag-history-count", trace.WithAttributes(requestAttributes(req)...))
	defer span.End()

	return tm.svc.TagHistoryCount(ctx, req)
}

func requestAttributes(req historian.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("filter", req.Filter),
		attribute.String("device", req.Device),
		attribute.String("tag", req.Tag),
		attribute.String("start", req.Start),
		attribute.String("end", req.End),
		attribute.String("bucket", req.Bucket),
		attribute.String("aggregate", req.Aggregate),
		attribute.Int("limit", req.Limit),
	}
}
