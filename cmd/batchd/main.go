// Command batchd accepts messages over TCP (and optionally HTTP), batches them
// in a batchq queue and delivers the batches to a sink.
//
// Run with: go run ./cmd/batchd
// Then:     nc localhost 10033
//
// Send "error" on its own while the console sink is active to watch a batch
// fail, get retried and, after three failures, open the circuit breaker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/batchq"
	"github.com/zoobzio/batchq/internal/logging"
	"github.com/zoobzio/batchq/internal/settings"
	"github.com/zoobzio/batchq/server"
	"github.com/zoobzio/batchq/sink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "batchd:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		port       int
		httpAddr   string
	)
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.IntVar(&port, "port", 10033, "TCP port of the line server")
	flag.StringVar(&httpAddr, "http", "", "HTTP ingest address, e.g. :8080 (disabled when empty)")
	flag.Parse()

	cfg, err := settings.Load(configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "http":
			cfg.Server.HTTPAddr = httpAddr
		}
	})

	logger, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, closeSink, err := newSink(ctx, cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	builder := batchq.NewBuilder[string]().
		Name("batchd").
		Config(cfg.Queue).
		Consumer(consumer).
		Logger(logger).
		FailureListener(func(err error) {
			logger.Error("batch delivery failed", zap.Error(err))
		})
	if cfg.Breaker.FailureThreshold > 0 {
		builder.CircuitBreaker(batchq.NewCircuitBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, batchq.RealClock))
	}

	queue, err := builder.Build()
	if err != nil {
		return err
	}
	defer queue.Shutdown()

	line, err := server.Listen(fmt.Sprintf(":%d", cfg.Server.Port), queue, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return line.Serve(gctx) })
	if cfg.Server.HTTPAddr != "" {
		api := server.NewHTTP(cfg.Server.HTTPAddr, queue, logger)
		g.Go(func() error { return api.Serve(gctx) })
	}

	err = g.Wait()
	logger.Info("shutting down", zap.Any("stats", queue.Stats()))
	return err
}

func newSink(ctx context.Context, cfg settings.Sink, logger *zap.Logger) (batchq.Consumer[string], func(), error) {
	switch cfg.Type {
	case settings.SinkKafka:
		producer, err := sink.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close", zap.Error(err))
			}
		}
		return sink.NewKafka(producer, cfg.Kafka.Topic, logger), closeFn, nil

	case settings.SinkRedis:
		client, err := sink.NewRedisClient(ctx, sink.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis client close", zap.Error(err))
			}
		}
		return sink.NewRedis(client, cfg.Redis.Key, logger), closeFn, nil

	case settings.SinkConsole, "":
		return sink.NewConsole(os.Stdout, batchq.RealClock, logger), func() {}, nil

	default:
		return nil, nil, errors.Errorf("unknown sink type %q", cfg.Type)
	}
}
