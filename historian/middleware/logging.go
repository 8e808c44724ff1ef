package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/sparkpipe/historian"
)

var _ historian.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    historian.Service
}

func Logging(logger *slog.Logger, svc historian.Service) historian.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Topology(ctx context.Context, device string) (resp historian.Topology, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("device", device),
			slog.Int("paths", len(resp.Paths)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Topology failed", args...)

			return
		}
		lm.logger.Info("Topology completed successfully", args...)
	}(time.Now())

	return lm.svc.Topology(ctx, device)
}

func (lm *loggingMiddleware) CurrentTime(ctx context.Context) (resp string, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Current time failed", args...)

			return
		}
		lm.logger.Debug("Current time completed successfully", args...)
	}(time.Now())

	return lm.svc.CurrentTime(ctx)
}

func (lm *loggingMiddleware) CurrentTagValue(ctx context.Context, device, tag string) (resp historian.TagValue, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("tag",
				slog.String("device", device),
				slog.String("name", tag),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Current tag value failed", args...)

			return
		}
		lm.logger.Info("Current tag value completed successfully", args...)
	}(time.Now())

	return lm.svc.CurrentTagValue(ctx, device, tag)
}

func (lm *loggingMiddleware) Status(ctx context.Context, req historian.Request) (resp historian.Result, err error) {
	defer func(begin time.Time) {
		lm.logResult("Status", begin, req, len(resp.Rows)+len(resp.Buckets), err)
	}(time.Now())

	return lm.svc.Status(ctx, req)
}

func (lm *loggingMiddleware) StatusCount(ctx context.Context, req historian.Request) (resp uint64, err error) {
	defer func(begin time.Time) {
		lm.logResult("Status count", begin, req, int(resp), err)
	}(time.Now())

	return lm.svc.StatusCount(ctx, req)
}

func (lm *loggingMiddleware) TagHistory(ctx context.Context, req historian.Request) (resp historian.Result, err error) {
	defer func(begin time.Time) {
		lm.logResult("Tag history", begin, req, len(resp.Rows)+len(resp.Buckets), err)
	}(time.Now())

	return lm.svc.TagHistory(ctx, req)
}

func (lm *loggingMiddleware) TagHistoryCount(ctx context.Context, req historian.Request) (resp uint64, err error) {
	defer func(begin time.Time) {
		lm.logResult("Tag history count", begin, req, int(resp), err)
	}(time.Now())

	return lm.svc.TagHistoryCount(ctx, req)
}

func (lm *loggingMiddleware) logResult(op string, begin time.Time, req historian.Request, n int, err error) {
	args := []any{
		slog.String("duration", time.Since(begin).String()),
		slog.Group("request",
			slog.String("filter", req.Filter),
			slog.String("device", req.Device),
			slog.String("start", req.Start),
			slog.String("end", req.End),
			slog.String("bucket", req.Bucket),
		),
		slog.Int("results", n),
	}
	if err != nil {
		args = append(args, slog.Any("error", err))
		lm.logger.Warn(op+" failed", args...)

		return
	}
	lm.logger.Info(op+" completed successfully", args...)
}
