package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/absmach/sparkpipe/historian"
	"github.com/absmach/sparkpipe/historian/api"
	"github.com/absmach/sparkpipe/historian/middleware"
	"github.com/absmach/sparkpipe/pkg/batcher"
	"github.com/absmach/sparkpipe/pkg/devicestate"
	"github.com/absmach/sparkpipe/pkg/mqtt"
	"github.com/absmach/sparkpipe/pkg/storage"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName          = "historian"
	metricsNamespace = "sparkpipe"
	defHTTPPort      = "9030"
	envPrefixHTTP    = "SPARKPIPE_HTTP_"
	envPrefixMQTT    = "SPARKPIPE_MQTT_"
	envPrefixIngest  = "SPARKPIPE_INGEST_"
	envPrefixBatch   = "SPARKPIPE_BATCH_"
	envPrefixQuery   = "SPARKPIPE_"
	pathEnv          = ".env"
)

type envConfig struct {
	LogLevel        string        `env:"SPARKPIPE_LOG_LEVEL"        envDefault:"info"`
	InstanceID      string        `env:"SPARKPIPE_INSTANCE_ID"`
	ShutdownTimeout time.Duration `env:"SPARKPIPE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	OTELURL         url.URL       `env:"SPARKPIPE_OTEL_URL"`
	TraceRatio      float64       `env:"SPARKPIPE_TRACE_RATIO"      envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("instance_id", cfg.InstanceID))
	slog.SetDefault(logger)

	mqttCfg := mqtt.Config{}
	ingestCfg := historian.IngestConfig{}
	batchCfg := batcher.Config{}
	queryCfg := historian.Config{}
	storageCfg := storage.Config{}
	for prefix, c := range map[string]any{
		envPrefixMQTT:   &mqttCfg,
		envPrefixIngest: &ingestCfg,
		envPrefixBatch:  &batchCfg,
		envPrefixQuery:  &queryCfg,
		"":              &storageCfg,
	} {
		if err := env.ParseWithOptions(c, env.Options{Prefix: prefix}); err != nil {
			logger.Error(fmt.Sprintf("failed to load %s%s configuration : %s", svcName, prefix, err.Error()))

			return
		}
	}

	loc, err := time.LoadLocation(queryCfg.Timezone)
	if err != nil {
		logger.Error("failed to load time zone", slog.String("timezone", queryCfg.Timezone), slog.Any("error", err))

		return
	}
	queryCfg.Location = loc

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(storageCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.String("type", storageCfg.Type), slog.Any("error", err))

		return
	}
	logger.Info("storage initialized", slog.String("type", storageCfg.Type))

	store := devicestate.New()
	batch := batcher.New(batchCfg, repos.History, &batcher.Metrics{
		Dropped: counter("batcher", "dropped_total", "Records dropped because the write queue was full."),
		Lost:    counter("batcher", "lost_total", "Records lost after exhausting write retries."),
		Written: counter("batcher", "written_total", "Records persisted."),
	}, logger)

	pubsub, err := mqtt.NewPubSub(mqttCfg, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))
		closeStorage(context.Background(), batch, repos, logger)

		return
	}

	ing := historian.NewIngestor(ingestCfg, store, batch, pubsub, &historian.IngestMetrics{
		Messages:       counter("ingest", "messages_total", "Sparkplug messages received."),
		DecodeErrors:   counter("ingest", "decode_errors_total", "Payloads that failed to decode."),
		TopicErrors:    counter("ingest", "topic_errors_total", "Messages with invalid Sparkplug topics."),
		AliasFallbacks: counter("ingest", "alias_fallbacks_total", "Metrics stored under an unresolved alias."),
		Unnamed:        counter("ingest", "unnamed_metrics_total", "Metrics discarded for carrying neither name nor alias."),
		SeqGaps:        counter("ingest", "seq_gaps_total", "Detected sequence number gaps."),
		Rebirths:       counter("ingest", "rebirths_total", "Rebirth commands published."),
	}, logger)

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	g.Go(func() error {
		return ing.Run(ingestCtx)
	})

	if err := historian.Subscribe(ctx, pubsub, ing, logger); err != nil {
		logger.Error("failed to subscribe to sparkplug namespace", slog.String("error", err.Error()))
		stopIngest()
		<-ing.Done()
		closeStorage(context.Background(), batch, repos, logger)

		return
	}

	svc := historian.NewService(store, repos.History, ingestCfg.Namespace, queryCfg, logger)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	apiCounter, apiLatency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(apiCounter, apiLatency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	// Broker traffic stops first, then the ingestor drains into the batcher,
	// then the batcher flushes into storage.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelShutdown()

		if err := historian.Unsubscribe(shutdownCtx, pubsub, ing); err != nil {
			logger.Warn("failed to unsubscribe from broker", slog.Any("error", err))
		}
		stopIngest()
		<-ing.Done()
		closeStorage(shutdownCtx, batch, repos, logger)

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func closeStorage(ctx context.Context, batch *batcher.Batcher, repos *storage.Repositories, logger *slog.Logger) {
	if err := batch.Close(ctx); err != nil {
		logger.Error("failed to flush pending records", slog.Int("pending", batch.Len()), slog.Any("error", err))
	}
	if repos.Closer == nil {
		return
	}
	if err := repos.Closer.Close(); err != nil {
		logger.Error("failed to close storage", slog.Any("error", err))
	}
}

func counter(subsystem, name, help string) *kitprometheus.Counter {
	return kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, []string{})
}
