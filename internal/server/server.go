// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/config"
	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/logging"
	"github.com/logpipe-io/logpipe/internal/monitor"
	queueMemory "github.com/logpipe-io/logpipe/internal/queue/memory"
	"github.com/logpipe-io/logpipe/internal/sender"
	gcssink "github.com/logpipe-io/logpipe/internal/sinks/gcs"
	"github.com/logpipe-io/logpipe/internal/sinks/httpbulk"
	memorysink "github.com/logpipe-io/logpipe/internal/sinks/memory"
	pgsink "github.com/logpipe-io/logpipe/internal/sinks/postgres"
	pubsubsink "github.com/logpipe-io/logpipe/internal/sinks/pubsub"
	tcpsink "github.com/logpipe-io/logpipe/internal/sinks/tcp"
	"github.com/logpipe-io/logpipe/internal/telemetry"
)

const serviceVersion = "0.1.0"

// pipeline couples one sender with its dedicated upstream queue.
type pipeline struct {
	queue  *queueMemory.Queue
	sender *sender.Sender
}

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	monitorServer *monitor.Server
	pipelines     []pipeline

	pubsubClient   *pubsub.Client
	storageClient  *storage.Client
	tracerShutdown func(context.Context) error
	metricShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{
		cfg:    cfg,
		logger: logger,
	}

	tp, mp, err := telemetry.InitTelemetry(ctx, "logpipe", serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	app.logger.Info("building application dependencies")
	app.monitorServer = monitor.NewServer(logger.Named("monitor"))

	for i := range cfg.Senders {
		sc := cfg.Senders[i]
		if err := app.addSender(ctx, sc); err != nil {
			return nil, fmt.Errorf("sender %s init failed: %w", sc.EffectiveName(), err)
		}
	}

	return app, nil
}

func (a *App) addSender(ctx context.Context, sc config.SenderConfig) error {
	enc, filter, err := buildCodec(sc)
	if err != nil {
		return err
	}
	sink, err := a.buildSink(ctx, sc, enc, filter)
	if err != nil {
		return err
	}

	queue := queueMemory.NewQueue(a.cfg.Queue.Depth)
	snd, err := sender.New(sink, queue, sender.Config{
		Name:          sc.EffectiveName(),
		BatchSize:     sc.BatchSize,
		Workers:       sc.Workers,
		FlushInterval: sc.FlushInterval(),
		Encoder:       enc,
		Filter:        filter,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	snd.SetUnregisterHook(a.monitorServer.Register(snd))
	a.pipelines = append(a.pipelines, pipeline{queue: queue, sender: snd})
	a.logger.Info("sender configured",
		zap.String("sender", snd.Name()),
		zap.String("sink", sc.Sink),
		zap.String("mode", snd.Mode().String()),
	)
	return nil
}

func buildCodec(sc config.SenderConfig) (encoding.Encoder, encoding.Filter, error) {
	var enc encoding.Encoder
	switch sc.Encoder {
	case "", "json":
		enc = encoding.NewJSONEncoder()
	case "text":
		enc = encoding.NewTextEncoder(sc.EncoderField)
	default:
		return nil, nil, fmt.Errorf("unknown encoder %q", sc.Encoder)
	}
	var filter encoding.Filter
	if sc.Filter == "gzip" {
		filter = encoding.NewGzipFilter()
	}
	return enc, filter, nil
}

func (a *App) buildSink(
	ctx context.Context,
	sc config.SenderConfig,
	enc encoding.Encoder,
	filter encoding.Filter,
) (sender.Sink, error) {
	switch sc.Sink {
	case "memory":
		return memorysink.New(sc.EffectiveName()), nil
	case "memory-batch":
		return memorysink.NewBatch(sc.EffectiveName()), nil
	case "httpbulk":
		return httpbulk.New(httpbulk.Config{
			URL:         sc.HTTP.URL,
			ContentType: sc.HTTP.ContentType,
			Timeout:     sc.HTTPTimeout(),
			Headers:     sc.HTTP.Headers,
			Logger:      a.logger.Named("httpbulk"),
		})
	case "tcp":
		return tcpsink.New(tcpsink.Config{
			Address:     sc.TCP.Address,
			DialTimeout: time.Duration(sc.TCP.DialTimeoutSeconds) * time.Second,
			Logger:      a.logger.Named("tcp"),
		}, enc, filter)
	case "pubsub":
		if a.pubsubClient == nil {
			client, err := pubsub.NewClient(ctx, sc.PubSub.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("pubsub client init failed: %w", err)
			}
			a.pubsubClient = client
		}
		publisher := a.pubsubClient.Publisher(sc.PubSub.TopicName)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", sc.PubSub.ProjectID),
			zap.String("topic", sc.PubSub.TopicName),
		)
		return pubsubsink.New(publisher, enc, a.logger.Named("pubsub")), nil
	case "postgres":
		return pgsink.New(ctx, pgsink.Config{
			DSN:      sc.Postgres.DSN,
			Table:    sc.Postgres.Table,
			MaxConns: sc.Postgres.MaxConns,
			MinConns: sc.Postgres.MinConns,
		})
	case "gcs":
		if a.storageClient == nil {
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.storageClient = client
		}
		return gcssink.New(a.storageClient, gcssink.Config{
			Bucket: sc.GCS.Bucket,
			Prefix: sc.GCS.Prefix,
			Logger: a.logger.Named("gcs"),
		})
	default:
		return nil, fmt.Errorf("unknown sink %q", sc.Sink)
	}
}

// Submit fans one payload out to every configured sender. Each sender gets
// its own event with an independent delivery outcome.
func (a *App) Submit(ctx context.Context, fields map[string]any) error {
	for _, p := range a.pipelines {
		ev := event.New(fields)
		if err := p.queue.Enqueue(ctx, ev); err != nil {
			return fmt.Errorf("enqueue to %s: %w", p.sender.Name(), err)
		}
	}
	return nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, p := range a.pipelines {
		if err := p.sender.Start(ctx); err != nil {
			return fmt.Errorf("start sender %s: %w", p.sender.Name(), err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.monitorServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	for _, p := range a.pipelines {
		p.queue.Close()
	}
	for _, p := range a.pipelines {
		if err := p.sender.Close(); err != nil {
			a.logger.Warn("sender close failed",
				zap.String("sender", p.sender.Name()), zap.Error(err))
		}
	}
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}
