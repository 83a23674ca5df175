// Package ingest loads external content into the knowledge store.
//
// Pages are fetched, reduced to readable text, split into overlapping
// chunks, and embedded into the store one chunk at a time. A failed
// chunk is logged and skipped rather than aborting the batch.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koopa0/ragline/internal/knowledge"
	"github.com/koopa0/ragline/internal/log"
)

// Result summarizes one ingestion run.
type Result struct {
	Source       string
	Title        string
	ChunksAdded  int
	ChunksFailed int
	TotalChars   int
	Duration     time.Duration
}

// Config contains all required parameters for the Ingestor.
type Config struct {
	Store    *knowledge.Store
	Fetcher  *Fetcher
	Splitter *Splitter
	Logger   log.Logger
}

func (cfg Config) validate() error {
	if cfg.Store == nil {
		return errors.New("knowledge store is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if cfg.Splitter == nil {
		return errors.New("splitter is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Ingestor splits and embeds documents into the knowledge store.
type Ingestor struct {
	store    *knowledge.Store
	fetcher  *Fetcher
	splitter *Splitter
	logger   log.Logger
}

// New creates an Ingestor with required configuration.
func New(cfg Config) (*Ingestor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Ingestor{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		splitter: cfg.Splitter,
		logger:   cfg.Logger,
	}, nil
}

// IngestURL fetches a web page and loads its readable text into the store.
func (i *Ingestor) IngestURL(ctx context.Context, rawURL string) (*Result, error) {
	start := time.Now()

	page, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	result, err := i.ingest(ctx, "web", page.URL, page.Title, page.Text)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	i.logger.Info("page ingested",
		"url", rawURL,
		"title", page.Title,
		"chunks_added", result.ChunksAdded,
		"chunks_failed", result.ChunksFailed,
		"duration", result.Duration)
	return result, nil
}

// IngestText loads raw text into the store under the given source label.
func (i *Ingestor) IngestText(ctx context.Context, source, text string) (*Result, error) {
	start := time.Now()

	result, err := i.ingest(ctx, "text", source, "", text)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (i *Ingestor) ingest(ctx context.Context, kind, source, title, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, source)
	}

	chunks := i.splitter.Split(text)
	result := &Result{Source: source, Title: title, TotalChars: len(text)}

	for idx, chunk := range chunks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		doc := knowledge.Document{
			ID:      chunkID(kind, source, idx),
			Content: chunk,
			Metadata: map[string]string{
				"source": source,
				"kind":   kind,
			},
			CreateAt: time.Now(),
		}
		if title != "" {
			doc.Metadata["title"] = title
		}

		if err := i.store.Add(ctx, doc); err != nil {
			result.ChunksFailed++
			i.logger.Warn("chunk embedding failed, skipping",
				"source", source, "chunk", idx, "error", err)
			continue
		}
		result.ChunksAdded++
	}

	if result.ChunksAdded == 0 && result.ChunksFailed > 0 {
		return result, fmt.Errorf("all %d chunks failed for %s", result.ChunksFailed, source)
	}
	return result, nil
}

// chunkID derives a stable document ID from the source and chunk index,
// so re-ingesting the same source updates documents in place.
func chunkID(kind, source string, idx int) string {
	sum := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%s_%s_%04d", kind, hex.EncodeToString(sum[:6]), idx)
}
