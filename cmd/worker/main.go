// Package main implements the itdoc processing worker: it consumes
// primary and secondary jobs off the durable queue and drives the View
// Engine against each one.
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
	"github.com/docengine/itdoc/internal/llmgw"
	"github.com/docengine/itdoc/internal/progress"
	"github.com/docengine/itdoc/internal/queue"
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
		logger.Error("worker exited with error", "err", err)
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
	reg.ServeAsync(9090)

	transport := buildTransport(cfg)
	gateway := llmgw.NewGateway(transport, st, reg)

	cls := classify.New(gateway)
	broker := progress.New()

	processors := map[domain.View]engine.ViewProcessor{
		domain.ViewLearning: learning.New(gateway, broker),
		domain.ViewQA:       qa.New(gateway, broker),
		domain.ViewSystem:   system.New(gateway, broker),
	}

	eng := engine.New(extract.NewRegistry(), cls, st, broker, processors)
	eng.StepTimeout = cfg.StepTimeout
	eng.Secondary = queue.Dispatcher{NC: nc}
	eng.Log = logger

	documents := st.Documents()
	primarySub, err := queue.StartConsumer(nc, logger, func(ctx context.Context, job queue.Job) error {
		views := enabledViewsFrom(job.EnabledViews)
		doc, err := documents.Get(ctx, job.DocumentID)
		if err != nil {
			return fmt.Errorf("load document %s: %w", job.DocumentID, err)
		}
		jobCtx, cancel := context.WithTimeout(ctx, cfg.JobTimeout)
		defer cancel()
		return eng.Run(jobCtx, job.TaskID, job.DocumentID, doc.BlobPath, doc.FileType, views)
	})
	if err != nil {
		return fmt.Errorf("start primary consumer: %w", err)
	}
	defer primarySub.Unsubscribe()

	secondarySub, err := queue.StartSecondaryConsumer(nc, logger, func(ctx context.Context, job queue.SecondaryJob) error {
		return eng.RunSecondary(ctx, job.TaskID, job.DocumentID, domain.View(job.View))
	})
	if err != nil {
		return fmt.Errorf("start secondary consumer: %w", err)
	}
	defer secondarySub.Unsubscribe()

	logger.Info("worker started", "queue_url", cfg.QueueURL)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// buildTransport picks a real HTTP transport or the deterministic mock,
// per LLM_MOCK_ENABLED (spec.md §4.4, §9).
func buildTransport(cfg config.Config) llmgw.Transport {
	if cfg.LLMMockEnabled {
		return llmgw.NewMockTransport(apperr.Kind(cfg.LLMMockFailureType), cfg.LLMMockProbability)
	}
	return llmgw.NewHTTPTransport(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
}

func enabledViewsFrom(raw []string) []domain.View {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.View, 0, len(raw))
	for _, r := range raw {
		v := domain.View(r)
		if v.IsValid() {
			out = append(out, v)
		}
	}
	return out
}
