// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles every component: Genkit with the
// configured AI provider, the knowledge store, the retrieval pipeline,
// the ingestor, and tracing.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/ragline/internal/chat"
	"github.com/koopa0/ragline/internal/config"
	"github.com/koopa0/ragline/internal/ingest"
	"github.com/koopa0/ragline/internal/knowledge"
)

// App is the core application container.
type App struct {
	Config *config.Config

	// Core services
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	Knowledge *knowledge.Store
	Pipeline  *chat.Pipeline
	Ingestor  *ingest.Ingestor

	otelCleanup func()
}

// Close gracefully shuts down all resources, flushing pending traces.
func (a *App) Close() error {
	slog.Info("shutting down application")

	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// ingestFetcherConfig converts the config's millisecond knobs into durations.
func ingestFetcherConfig(cfg *config.Config) (parallelism int, delay, timeout time.Duration) {
	return cfg.Ingest.Parallelism,
		time.Duration(cfg.Ingest.DelayMs) * time.Millisecond,
		time.Duration(cfg.Ingest.TimeoutMs) * time.Millisecond
}

// background detaches a shutdown context from the (possibly canceled) parent.
func background(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
