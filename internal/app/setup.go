package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/koopa0/ragline/internal/chat"
	"github.com/koopa0/ragline/internal/config"
	"github.com/koopa0/ragline/internal/history"
	"github.com/koopa0/ragline/internal/ingest"
	"github.com/koopa0/ragline/internal/knowledge"
	"github.com/koopa0/ragline/internal/llm"
	"github.com/koopa0/ragline/internal/log"
	"github.com/koopa0/ragline/internal/observability"
	"github.com/koopa0/ragline/internal/rag"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so the
	// TracerProvider is ready when flows start.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(embedder, logger)

	client, err := llm.New(llm.Config{
		Genkit:      g,
		Logger:      logger,
		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
		RetryConfig: llm.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: llm.DefaultRetryConfig().InitialInterval,
			MaxInterval:     llm.DefaultRetryConfig().MaxInterval,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	retriever, err := rag.NewRetriever(rag.RetrieverConfig{
		Store:  a.Knowledge,
		Logger: logger,
		TopK:   cfg.TopK,
		FetchK: cfg.FetchK,
		Lambda: cfg.MMRLambda,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	pipelineCfg := chat.Config{
		History:         history.New(cfg.HistoryWindow, logger),
		Rewriter:        rag.NewRewriter(client, logger),
		Retriever:       retriever,
		Generator:       client,
		Logger:          logger,
		MaxContextChars: cfg.MaxContextChars,
	}
	if cfg.VisionModel != "" {
		pipelineCfg.Vision = client
		pipelineCfg.VisionModel = cfg.FullVisionModelName()
	}
	pipeline, err := chat.New(pipelineCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	a.Pipeline = pipeline

	parallelism, delay, timeout := ingestFetcherConfig(cfg)
	fetcher, err := ingest.NewFetcher(ingest.FetcherConfig{
		Logger:      logger,
		Parallelism: parallelism,
		Delay:       delay,
		Timeout:     timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}
	ingestor, err := ingest.New(ingest.Config{
		Store:    a.Knowledge,
		Fetcher:  fetcher,
		Splitter: ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ingestor: %w", err)
	}
	a.Ingestor = ingestor

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization.
// An empty endpoint disables export entirely.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.Otel.Endpoint == "" {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Otel.Endpoint,
		Environment: cfg.Otel.Environment,
		ServiceName: cfg.Otel.ServiceName,
	})
	if err != nil {
		logger.Warn("tracing setup failed, continuing without it", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := background(5 * time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports ollama (default), gemini, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		if cfg.VisionModel != "" {
			ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
				Name: cfg.VisionModel,
				Type: "chat",
			}, nil)
		}
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini / googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
//   - gemini: GoogleAIEmbedder(g, modelName)
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
