// Command counciltrader runs the weekly LLM council macro trading
// orchestrator: it wires configuration, the event store, provider
// ports, and the job manager behind an HTTP job-control surface, the
// way cmd/server/main.go wires the teacher's trading components.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/llmcouncil/macrotrader/internal/apiserver"
	"github.com/llmcouncil/macrotrader/internal/config"
	"github.com/llmcouncil/macrotrader/internal/eventstore"
	"github.com/llmcouncil/macrotrader/internal/jobs"
	"github.com/llmcouncil/macrotrader/internal/ports"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

func main() {
	addr := flag.String("addr", getEnvOrDefault("COUNCIL_HTTP_ADDR", ":8080"), "HTTP listen address")
	configFile := flag.String("config", getEnvOrDefault("COUNCIL_CONFIG_FILE", ""), "optional YAML config file")
	logLevel := flag.String("log-level", getEnvOrDefault("COUNCIL_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	var store eventstore.Gateway
	if cfg.EventStoreDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := eventstore.NewPGStore(ctx, cfg.EventStoreDSN, logger)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to postgres event store", zap.Error(err))
		}
		store = pg
		logger.Info("using postgres event store")
	} else {
		store = eventstore.NewMemStore(logger)
		logger.Info("using in-memory event store (no COUNCIL_EVENT_STORE_DSN configured)")
	}

	// Real vendor LLM/broker/search clients are out of scope (spec
	// §1/§6); the fakes give the pipeline something to run against
	// until a concrete adapter is wired in.
	llmProvider := ports.NewFakeLLMProvider()
	searchProvider := &ports.FakeWebSearchProvider{}
	broker := ports.NewFakeBrokerClient()
	snapshot := &ports.FakeMarketSnapshot{Prices: map[council.Instrument]float64{}}

	manager := jobs.New(logger, cfg.JobTTL, buildPipeline(cfg, llmProvider, searchProvider, broker, snapshot, store, logger))
	manager.Start()

	server := apiserver.New(logger, cfg.HTTPAddr, manager)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start()
	}()

	reapTicker := time.NewTicker(time.Hour)
	defer reapTicker.Stop()
	reapDone := make(chan struct{})
	defer close(reapDone)
	go func() {
		for {
			select {
			case <-reapTicker.C:
				if n := manager.Reap(); n > 0 {
					logger.Info("reaped expired jobs", zap.Int("count", n))
				}
			case <-reapDone:
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("council orchestrator started", zap.String("addr", cfg.HTTPAddr), zap.String("mode", string(cfg.Mode)))

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping http server", zap.Error(err))
	}
	if err := manager.Stop(); err != nil {
		logger.Error("error stopping job manager", zap.Error(err))
	}

	logger.Info("council orchestrator stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
