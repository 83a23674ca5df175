// Package llm wraps Genkit model generation behind a small client.
//
// The client owns everything backend-shaped: model selection, temperature,
// transient-error retries, and proactive rate limiting. Callers hand it
// messages and get text back; orchestration never retries on top of it.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/koopa0/ragline/internal/log"
)

// StreamCallback is called for each chunk of streaming response.
// The chunk contains partial content that can be immediately displayed to the user.
// Return an error to abort the stream.
type StreamCallback func(ctx context.Context, chunk *ai.ModelResponseChunk) error

// Config contains all required parameters for the Client.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger

	// ModelName is the provider-qualified model name
	// (e.g., "ollama/llama3.1", "googleai/gemini-2.5-flash").
	ModelName string

	// Temperature in [0, 1], forwarded to the model.
	Temperature float32

	// RetryConfig controls transient-error retries.
	// MaxRetries of zero disables retrying; interval zero-values use defaults.
	RetryConfig RetryConfig

	// RateLimiter optionally throttles generation attempts (nil = use default).
	RateLimiter *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Client generates model responses over Genkit.
//
// All configuration values are captured immutably at construction time
// to ensure thread-safe concurrent access.
type Client struct {
	g           *genkit.Genkit
	logger      log.Logger
	modelName   string
	temperature float32
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
}

// New creates a new Client with required configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.InitialInterval == 0 {
		retryConfig.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if retryConfig.MaxInterval == 0 {
		retryConfig.MaxInterval = DefaultRetryConfig().MaxInterval
	}
	if retryConfig.MaxRetries < 0 {
		retryConfig.MaxRetries = 0
	}

	// Default: 10 requests/sec sustained, burst of 30
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:           cfg.Genkit,
		logger:      cfg.Logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		retryConfig: retryConfig,
		rateLimiter: rl,
	}, nil
}

// Generate produces a complete response for the given messages (non-streaming).
func (c *Client) Generate(ctx context.Context, msgs []*ai.Message) (string, error) {
	return c.generate(ctx, msgs, nil)
}

// Stream produces a response, forwarding each chunk to callback as it arrives.
// The full response text is returned after the stream completes.
func (c *Client) Stream(ctx context.Context, msgs []*ai.Message, callback StreamCallback) (string, error) {
	return c.generate(ctx, msgs, callback)
}

func (c *Client) generate(ctx context.Context, msgs []*ai.Message, callback StreamCallback) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(msgs...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(c.temperature),
		}),
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(ai.ModelStreamCallback(callback)))
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// GenerateOnce issues a single generation with an explicit model override,
// bypassing retries. Used for auxiliary calls like image description where
// a different model (e.g. a vision model) is needed.
func (c *Client) GenerateOnce(ctx context.Context, modelName string, msgs []*ai.Message) (string, error) {
	if modelName == "" {
		modelName = c.modelName
	}
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(modelName),
		ai.WithMessages(msgs...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(c.temperature),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return resp.Text(), nil
}
