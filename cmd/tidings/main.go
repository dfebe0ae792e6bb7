package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gracefellowship/tidings/v1/analytics"
	"github.com/gracefellowship/tidings/v1/changebus"
	"github.com/gracefellowship/tidings/v1/church"
	"github.com/gracefellowship/tidings/v1/config"
	"github.com/gracefellowship/tidings/v1/metrics"
	"github.com/gracefellowship/tidings/v1/query"
	"github.com/gracefellowship/tidings/v1/realtime"
	"github.com/gracefellowship/tidings/v1/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tidings: exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Tracing {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		otel.SetTracerProvider(tp)
	}

	reg := metrics.NewRegistry()
	metrics.RegisterCoreMetrics(reg)

	db, err := storage.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	bus, closeBus, err := newBus(ctx, cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	var feed realtime.Feed = realtime.NewMemoryFeed()
	if cfg.Feed == config.FeedRedis {
		feed = realtime.NewRedisFeed(rdb, realtime.WithFeedLogger(logger))
	}
	defer feed.Close()

	var clientOpts []query.ClientOption
	clientOpts = append(clientOpts, query.WithLogger(logger))
	if cfg.Tracing {
		clientOpts = append(clientOpts, query.WithTracing())
	}
	client := query.NewClient(bus, clientOpts...)
	defer client.Close()

	store := church.NewStore(db, feed, church.WithStoreLogger(logger))
	app := &app{
		content:   church.Hooks{Client: client, Store: store},
		mutations: church.NewMutations(store, bus, logger),
		tracker:   analytics.NewTracker(db, logger),
		reports:   analytics.Hooks{Client: client, Reports: analytics.NewReports(db), Logger: logger},
	}
	if err := app.open(); err != nil {
		return err
	}
	defer app.close()

	bridge := realtime.NewBridge(feed, bus, realtime.DefaultWatches(), realtime.WithLogger(logger))
	if err := bridge.Mount(ctx); err != nil {
		logger.Warn("tidings: some realtime watches failed", "error", err)
	}
	defer bridge.Unmount()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/realtime/sse", realtime.SSEHandler(bus))
	mux.Handle("/realtime/ws", realtime.WebSocketHandler(bus))
	app.routes(mux)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tidings: listening", "addr", cfg.HTTPAddr, "transport", cfg.Transport, "feed", cfg.Feed)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// newBus returns the process bus, bridged to the configured transport.
func newBus(ctx context.Context, cfg config.Config, rdb *redis.Client, logger *slog.Logger) (changebus.Bus, func(), error) {
	local := changebus.NewInMemory(changebus.WithLogger(logger))
	var t changebus.Transport
	var nc *nats.Conn
	switch cfg.Transport {
	case config.TransportNone:
		return local, func() {}, nil
	case config.TransportRedis:
		t = changebus.NewRedisTransport(rdb)
	case config.TransportNATS:
		var err error
		if nc, err = nats.Connect(cfg.NATSURL); err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		t = changebus.NewNATSTransport(nc)
	case config.TransportKafka:
		kcfg := sarama.NewConfig()
		kcfg.Producer.Return.Successes = true
		kt, err := changebus.NewKafkaTransport(cfg.KafkaBrokers, kcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect kafka: %w", err)
		}
		t = kt
	}
	t = changebus.NewCircuitBreaker(t, cfg.BreakerFails, cfg.BreakerTimeout)
	b, err := changebus.NewBridged(ctx, local, t, cfg.BusChannel, changebus.WithLogger(logger))
	closeTransport := func() {
		_ = t.Close()
		if nc != nil {
			nc.Close()
		}
	}
	if err != nil {
		closeTransport()
		return nil, nil, err
	}
	return b, func() {
		_ = b.Close()
		closeTransport()
	}, nil
}
