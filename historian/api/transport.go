package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/sparkpipe/historian"
	"github.com/absmach/sparkpipe/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func MakeHandler(svc historian.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/topology", otelhttp.NewHandler(kithttp.NewServer(
		topologyEndpoint(svc),
		decodeTopologyReq,
		api.EncodeResponse,
		opts...,
	), "topology").ServeHTTP)

	mux.Get("/time", otelhttp.NewHandler(kithttp.NewServer(
		currentTimeEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "current-time").ServeHTTP)

	mux.Route("/status", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			historyEndpoint(svc.Status),
			decodeHistoryReq,
			api.EncodeResponse,
			opts...,
		), "status").ServeHTTP)
		r.Post("/count", otelhttp.NewHandler(kithttp.NewServer(
			countEndpoint(svc.StatusCount),
			decodeHistoryReq,
			api.EncodeResponse,
			opts...,
		), "status-count").ServeHTTP)
	})

	mux.Route("/tags", func(r chi.Router) {
		r.Get("/current", otelhttp.NewHandler(kithttp.NewServer(
			currentTagValueEndpoint(svc),
			decodeCurrentTagReq,
			api.EncodeResponse,
			opts...,
		), "current-tag-value").ServeHTTP)
		r.Post("/history", otelhttp.NewHandler(kithttp.NewServer(
			historyEndpoint(svc.TagHistory),
			decodeHistoryReq,
			api.EncodeResponse,
			opts...,
		), "tag-history").ServeHTTP)
		r.Post("/history/count", otelhttp.NewHandler(kithttp.NewServer(
			countEndpoint(svc.TagHistoryCount),
			decodeHistoryReq,
			api.EncodeResponse,
			opts...,
		), "tag-history-count").ServeHTTP)
	})

	mux.Get("/health", supermq.Health("historian", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeTopologyReq(_ context.Context, r *http.Request) (any, error) {
	device, err := apiutil.ReadStringQuery(r, api.DeviceKey, "")
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return topologyReq{device: device}, nil
}

func decodeCurrentTagReq(_ context.Context, r *http.Request) (any, error) {
	device, err := apiutil.ReadStringQuery(r, api.DeviceKey, "")
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}
	tag, err := apiutil.ReadStringQuery(r, api.TagKey, "")
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return currentTagReq{device: device, tag: tag}, nil
}

func decodeHistoryReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var req historyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return req, nil
}
