package rag

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/log"
)

// contextualizeInstruction asks the model to resolve pronouns and other
// references against the chat history, producing a standalone question.
const contextualizeInstruction = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is. " +
	"Provide just a question, without explanations or any additional remarks."

// Generator is the minimal generation capability the rewriter needs.
// *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, msgs []*ai.Message) (string, error)
}

// Rewriter turns follow-up questions into standalone ones using the
// session's chat history.
//
// Rewriting is best-effort: any backend failure falls back to the
// original question, so a flaky model can degrade retrieval quality but
// never fail a turn.
type Rewriter struct {
	gen    Generator
	logger log.Logger
}

// NewRewriter creates a Rewriter.
func NewRewriter(gen Generator, logger log.Logger) *Rewriter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Rewriter{gen: gen, logger: logger}
}

// Rewrite returns a standalone form of question.
//
// With empty history the question is already standalone, so it is returned
// verbatim without any backend call. Otherwise a single generation resolves
// references against the history; on error or empty output the original
// question is returned.
func (r *Rewriter) Rewrite(ctx context.Context, question string, history []*ai.Message) string {
	if len(history) == 0 {
		return question
	}

	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(contextualizeInstruction)))
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(question)))

	rewritten, err := r.gen.Generate(ctx, msgs)
	if err != nil {
		r.logger.Warn("query rewrite failed, using original question", "error", err)
		return question
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		r.logger.Warn("query rewrite returned empty output, using original question")
		return question
	}

	r.logger.Debug("rewrote question",
		"original_length", len(question), "rewritten_length", len(rewritten))
	return rewritten
}
