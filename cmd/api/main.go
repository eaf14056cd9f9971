// Package main implements the itdoc ingestion API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/docengine/itdoc/internal/apperr"
	"github.com/docengine/itdoc/internal/classify"
	"github.com/docengine/itdoc/internal/config"
	"github.com/docengine/itdoc/internal/domain"
	"github.com/docengine/itdoc/internal/engine"
	"github.com/docengine/itdoc/internal/extract"
	"github.com/docengine/itdoc/internal/httpapi"
	"github.com/docengine/itdoc/internal/llmgw"
	"github.com/docengine/itdoc/internal/progress"
	"github.com/docengine/itdoc/internal/store"
	"github.com/docengine/itdoc/internal/views/learning"
	"github.com/docengine/itdoc/internal/views/qa"
	"github.com/docengine/itdoc/internal/views/system"
	"github.com/docengine/itdoc/pkg/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	nc, err := nats.Connect(cfg.QueueURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	reg := metrics.New()
	reg.ServeAsync(9091)

	transport := buildTransport(cfg)
	gateway := llmgw.NewGateway(transport, st, reg)

	// The API shares the worker's gateway/processor wiring: switch-view
	// (spec.md §4.8) computes synchronously within the request, so the
	// API process needs the same LLM-calling processors the worker uses
	// for the async job path.
	cls := classify.New(gateway)
	broker := progress.New()
	processors := map[domain.View]engine.ViewProcessor{
		domain.ViewLearning: learning.New(gateway, broker),
		domain.ViewQA:       qa.New(gateway, broker),
		domain.ViewSystem:   system.New(gateway, broker),
	}
	eng := engine.New(extract.NewRegistry(), cls, st, broker, processors)
	eng.StepTimeout = cfg.StepTimeout
	eng.Log = logger

	srv := &httpapi.Server{
		Cfg:        cfg,
		Documents:  st.Documents(),
		Store:      st,
		Classifier: cls,
		Engine:     eng,
		Broker:     broker,
		NATS:       nc,
		Log:        logger,
	}

	return srv.Serve(ctx, ":"+cfg.Port)
}

// buildTransport picks a real HTTP transport or the deterministic mock,
// per LLM_MOCK_ENABLED (spec.md §4.4, §9).
func buildTransport(cfg config.Config) llmgw.Transport {
	if cfg.LLMMockEnabled {
		return llmgw.NewMockTransport(apperr.Kind(cfg.LLMMockFailureType), cfg.LLMMockProbability)
	}
	return llmgw.NewHTTPTransport(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
}
