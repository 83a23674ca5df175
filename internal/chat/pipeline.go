// Package chat orchestrates the conversational answer pipeline.
//
// A turn moves through fixed stages: rewrite the question against session
// history, retrieve supporting documents, assemble the prompt, stream the
// generated answer, and commit the turn to history. Rewrite and retrieval
// failures degrade the turn; generation failures fail it. History is
// committed exactly once, and only after the full answer has streamed.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/koopa0/ragline/internal/history"
	"github.com/koopa0/ragline/internal/knowledge"
	"github.com/koopa0/ragline/internal/llm"
	"github.com/koopa0/ragline/internal/log"
	"github.com/koopa0/ragline/internal/rag"
)

// Stage identifies a phase of the answer pipeline.
// Stages appear in error wrapping and logs.
type Stage string

const (
	StageReceived   Stage = "received"
	StageRewriting  Stage = "rewriting"
	StageRetrieving Stage = "retrieving"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageCommitting Stage = "committing"
)

// fallbackResponseMessage is returned when the model produces an empty response.
const fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// Sentinel errors for pipeline operations.
var (
	// ErrInvalidSession indicates the session ID is empty or malformed.
	ErrInvalidSession = errors.New("invalid session")

	// ErrEmptyQuestion indicates the question contained no content.
	ErrEmptyQuestion = errors.New("empty question")
)

// StageError wraps an error with the pipeline stage it occurred in.
// Unwrap preserves the cause, so errors.Is(err, context.Canceled)
// still identifies cancelled turns.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Rewriter turns a follow-up question into a standalone one.
// Implementations degrade internally and never fail the turn.
type Rewriter interface {
	Rewrite(ctx context.Context, question string, history []*ai.Message) string
}

// Retriever fetches supporting documents for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]knowledge.Result, error)
}

// Generator produces model responses. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, msgs []*ai.Message) (string, error)
	Stream(ctx context.Context, msgs []*ai.Message, callback llm.StreamCallback) (string, error)
}

// VisionGenerator issues one-shot generations against an explicit model.
// Used for image description, which bypasses history and retrieval.
type VisionGenerator interface {
	GenerateOnce(ctx context.Context, modelName string, msgs []*ai.Message) (string, error)
}

// Config contains all required parameters for the Pipeline.
type Config struct {
	History   *history.Manager
	Rewriter  Rewriter
	Retriever Retriever
	Generator Generator
	Logger    log.Logger

	// MaxContextChars bounds the retrieved context in the prompt (0 = unbounded).
	MaxContextChars int

	// Vision is optional; when set, Describe becomes available.
	Vision      VisionGenerator
	VisionModel string
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.History == nil {
		return errors.New("history manager is required")
	}
	if cfg.Rewriter == nil {
		return errors.New("rewriter is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Pipeline answers questions with retrieval-augmented generation.
//
// Turns within one session are serialized: a second AskStream on the same
// session blocks until the first has committed or failed. Different
// sessions proceed concurrently.
type Pipeline struct {
	history         *history.Manager
	rewriter        Rewriter
	retriever       Retriever
	generator       Generator
	logger          log.Logger
	maxContextChars int

	vision      VisionGenerator
	visionModel string

	lockMu       sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// New creates a new Pipeline with required configuration.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		history:         cfg.History,
		rewriter:        cfg.Rewriter,
		retriever:       cfg.Retriever,
		generator:       cfg.Generator,
		logger:          cfg.Logger,
		maxContextChars: cfg.MaxContextChars,
		vision:          cfg.Vision,
		visionModel:     cfg.VisionModel,
		sessionLocks:    make(map[string]*sync.Mutex),
	}, nil
}

// Ask answers a question without streaming.
// This is a convenience wrapper around AskStream with nil callback.
func (p *Pipeline) Ask(ctx context.Context, sessionID, question string) (string, error) {
	return p.AskStream(ctx, sessionID, question, nil)
}

// AskStream answers a question, forwarding each response fragment to
// callback as it is generated (nil callback disables streaming).
//
// On success the turn (user question, model answer) is appended to the
// session history exactly once. On generation failure or cancellation the
// history is left untouched; fragments already delivered to callback are
// not recalled. The returned error wraps the stage it occurred in.
func (p *Pipeline) AskStream(ctx context.Context, sessionID, question string, callback llm.StreamCallback) (string, error) {
	if sessionID == "" {
		return "", &StageError{StageReceived, ErrInvalidSession}
	}
	if strings.TrimSpace(question) == "" {
		return "", &StageError{StageReceived, ErrEmptyQuestion}
	}

	// One turn at a time per session, in arrival order.
	mu := p.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	logger := p.logger.With("session_id", sessionID, "turn_id", uuid.NewString())
	logger.Debug("turn received", "streaming", callback != nil, "question_length", len(question))

	snapshot := p.history.Snapshot(sessionID)

	// Rewriting degrades internally; the query is the original question at worst.
	query := p.rewriter.Rewrite(ctx, question, snapshot)

	docs, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		// Non-fatal: answer from history alone.
		logger.Warn("retrieval failed, answering without context",
			"stage", StageRetrieving, "error", err)
		docs = nil
	}

	// The prompt carries the original question; the rewrite drives retrieval only.
	msgs := rag.BuildPrompt(snapshot, docs, question, p.maxContextChars)

	answer, err := p.generator.Stream(ctx, msgs, callback)
	if err != nil {
		logger.Warn("generation failed, turn not committed",
			"stage", StageGenerating, "error", err, "cancelled", ctx.Err() != nil)
		return "", &StageError{StageGenerating, err}
	}

	if strings.TrimSpace(answer) == "" {
		logger.Warn("model returned empty response")
		answer = fallbackResponseMessage
	}

	p.history.Append(sessionID,
		ai.NewUserMessage(ai.NewTextPart(question)),
		ai.NewModelMessage(ai.NewTextPart(answer)),
	)
	logger.Debug("turn committed",
		"stage", StageCommitting, "documents", len(docs), "answer_length", len(answer))

	return answer, nil
}

// Reset clears the conversation history of a session.
func (p *Pipeline) Reset(sessionID string) {
	p.history.Clear(sessionID)
}

// sessionLock returns the mutex serializing turns for a session,
// creating it on first use.
func (p *Pipeline) sessionLock(sessionID string) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()

	mu, ok := p.sessionLocks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		p.sessionLocks[sessionID] = mu
	}
	return mu
}
