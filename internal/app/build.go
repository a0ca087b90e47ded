// Package app wires configuration into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/mnemo/internal/completion"
	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/conversation"
	"github.com/ent0n29/mnemo/internal/extractor"
	"github.com/ent0n29/mnemo/internal/httpapi"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/turn"
)

type BuildResult struct {
	Config        config.Config
	API           *httpapi.Server
	Conversations *conversation.Manager
	Orchestrator  *turn.Orchestrator
	Metrics       *observability.Metrics
	Status        httpapi.Status

	// Cleanup drains pending memory writes and closes the store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, backend, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MemorySQLitePath)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	logger.Info("memory store ready", "backend", backend)

	client, err := completion.New(completion.Config{
		Mode:            cfg.CompletionProvider,
		HTTPURL:         cfg.NebiusAPIURL,
		HTTPModelPath:   cfg.NebiusModelPath,
		HTTPModel:       cfg.NebiusModel,
		HTTPAPIKey:      cfg.NebiusAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		Temperature:     cfg.CompletionTemp,
		MaxTokens:       cfg.CompletionMaxTokens,
		Timeout:         cfg.CompletionTimeout,
		MaxRetries:      cfg.CompletionMaxRetries,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("completion client init failed: %w", err)
	}
	logger.Info("completion client ready", "provider", client.Name(), "ai_configured", cfg.AIConfigured())

	conversations := conversation.NewManager(cfg.ConversationInactivityTimeout)
	conversations.SetEndedRetention(cfg.ConversationEndedRetention)
	conversations.SetExpireHook(func(info conversation.Info) {
		logger.Info("conversation expired", "conversation_id", info.ID, "turns", info.TurnCount)
		metrics.ConversationEvents.WithLabelValues("expired").Inc()
		metrics.ActiveConversations.Set(float64(conversations.ActiveCount()))
	})

	ext := extractor.New(client, extractor.NewPrompt(cfg.ExtractionPromptPath, logger), logger)
	ext.OnAmbiguous(func() {
		metrics.ObserveTurnIndicator("extraction_ambiguous")
	})

	orchestrator := turn.New(turn.Deps{
		Conversations: conversations,
		Store:         store,
		Retriever:     memory.NewRetriever(store, memory.RecencyRanker{}, cfg.MemoryRecentLimit, logger).WithCandidatePool(cfg.MemoryCandidatePool),
		Extractor:     ext,
		Completion: completion.NewGraceful(client, logger, func(provider string, kind completion.Kind) {
			metrics.CompletionErrors.WithLabelValues(provider, string(kind)).Inc()
		}),
		Persist: turn.NewPersistQueue(store, cfg.PersistWorkers, cfg.PersistQueueSize, metrics, logger),
		Metrics: metrics,
		Logger:  logger,
		Persona: cfg.SystemPrompt,

		CompletionTimeout: cfg.CompletionTimeout * time.Duration(cfg.CompletionMaxRetries+1),
	})

	status := httpapi.Status{CompletionProvider: client.Name(), MemoryBackend: backend}
	api := httpapi.New(cfg, status, conversations, orchestrator, metrics, logger)

	cleanup := func() error {
		orchestrator.Close()
		var errs []error
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("memory store close: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Conversations: conversations,
		Orchestrator:  orchestrator,
		Metrics:       metrics,
		Status:        status,
		Cleanup:       cleanup,
	}, nil
}

// StartJanitor expires idle conversations until ctx is done.
func (b *BuildResult) StartJanitor(ctx context.Context) {
	b.Conversations.StartJanitor(ctx, 5*time.Second)
}
