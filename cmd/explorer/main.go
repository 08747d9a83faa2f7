package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bcexplorer/internal/application"
	"bcexplorer/internal/config"
	"bcexplorer/internal/infrastructure/ethrpc"
	"bcexplorer/internal/infrastructure/kafka"
	"bcexplorer/internal/infrastructure/logging"
	"bcexplorer/internal/infrastructure/rediscache"
	"bcexplorer/internal/infrastructure/storage"
	"bcexplorer/internal/infrastructure/telemetry"
	"bcexplorer/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logFile, err := logging.Setup(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("logging error: %v", err)
	}
	defer logFile.Close()

	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:    "bcexplorer",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		log.Printf("tracing init error: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	metrics := httpapi.NewMetrics()
	rpcClient, err := ethrpc.NewClient(ethrpc.Config{
		URL:      cfg.RPCURL,
		Timeout:  cfg.RPCTimeout,
		Observer: metrics,
	})
	if err != nil {
		log.Fatalf("rpc error: %v", err)
	}

	namespace := ""
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.RPCTimeout)
	if chainID, err := rpcClient.ChainID(startupCtx); err != nil {
		log.Printf("chain id unavailable: %v", err)
	} else {
		namespace = strconv.FormatUint(chainID, 10)
		log.Printf("connected to chain %d", chainID)
	}
	cancelStartup()

	var (
		source      application.ChainSource = rpcClient
		invalidator httpapi.CacheInvalidator
	)
	if cached, err := rediscache.NewCachedSource(rpcClient, rediscache.Config{
		Addr:          cfg.RedisAddr,
		TTL:           cfg.CacheTTL,
		Namespace:     namespace,
		Confirmations: cfg.CacheDepth,
		Observer:      metrics,
	}); err != nil {
		log.Printf("redis cache disabled: %v", err)
	} else if cached.Enabled() {
		defer cached.Close()
		source = cached
		invalidator = cached
		log.Printf("redis cache enabled: addr=%s ttl=%s", cfg.RedisAddr, cfg.CacheTTL)
	}

	history, err := storage.Open(cfg.HistoryDriver, cfg.HistoryDSN)
	if err != nil {
		log.Fatalf("history store error: %v", err)
	}
	defer history.Close()

	sinks := application.Sinks{history}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Observer: metrics,
		})
		if err != nil {
			log.Fatalf("kafka producer error: %v", err)
		}
		defer producer.Close()
		sinks = append(sinks, producer)
		log.Printf("lookup events enabled: topic=%s", cfg.KafkaTopic)
	}

	explorer, err := application.NewExplorer(source, history, sinks, metrics, application.ExplorerConfig{
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatalf("explorer error: %v", err)
	}

	httpServer, err := httpapi.NewServer(explorer, history, invalidator, metrics, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		log.Fatalf("http server error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.HeadPoll > 0 {
		watcher, err := application.NewHeadWatcher(source, metrics, application.HeadWatcherConfig{
			PollInterval:      cfg.HeadPoll,
			Warm:              invalidator != nil,
			WarmConfirmations: cfg.CacheDepth,
		})
		if err != nil {
			log.Fatalf("head watcher error: %v", err)
		}
		go func() {
			_ = watcher.Run(ctx)
		}()
		log.Printf("head watcher started: interval=%s", cfg.HeadPoll)
	}

	log.Printf("http server listening on %s", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		log.Printf("http server error: %v", err)
	}
	log.Printf("shutting down")
}
