package rag

import (
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/knowledge"
)

// answerInstruction is the fixed system instruction for answer generation.
const answerInstruction = "You are an assistant for question-answering tasks. " +
	"Use the following pieces of retrieved context to answer " +
	"the question. If you don't know the answer, just say that you " +
	"don't know. Use three sentences maximum and keep the " +
	"answer concise."

// BuildPrompt assembles the generation prompt in a fixed order:
// system instruction with the retrieved context, the session history,
// and finally the user's original (not rewritten) question.
//
// The context block is always part of the system message, even when no
// documents were retrieved; the model then answers from history alone.
// BuildPrompt is a pure function: identical inputs produce byte-identical
// messages.
func BuildPrompt(history []*ai.Message, docs []knowledge.Result, question string, maxContextChars int) []*ai.Message {
	system := answerInstruction + "\n\n" + contextBlock(docs, maxContextChars)

	msgs := make([]*ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(system)))
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(question)))
	return msgs
}

// contextBlock joins chunk contents in retrieval order, separated by blank
// lines, truncated to maxContextChars characters (0 = unbounded).
func contextBlock(docs []knowledge.Result, maxContextChars int) string {
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(doc.Document.Content)
	}

	block := sb.String()
	if maxContextChars > 0 {
		if runes := []rune(block); len(runes) > maxContextChars {
			block = string(runes[:maxContextChars])
		}
	}
	return block
}
