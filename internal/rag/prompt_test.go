package rag

import (
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/knowledge"
)

func chunk(id, content string) knowledge.Result {
	return knowledge.Result{Document: knowledge.Document{ID: id, Content: content}}
}

func TestBuildPromptOrder(t *testing.T) {
	history := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart("first question")),
		ai.NewModelMessage(ai.NewTextPart("first answer")),
	}
	docs := []knowledge.Result{chunk("a", "chunk one"), chunk("b", "chunk two")}

	msgs := BuildPrompt(history, docs, "second question", 0)

	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[0].Role != ai.RoleSystem {
		t.Errorf("messages[0].Role = %v, want system", msgs[0].Role)
	}
	if msgs[1].Text() != "first question" || msgs[2].Text() != "first answer" {
		t.Errorf("history not preserved in order: %q, %q", msgs[1].Text(), msgs[2].Text())
	}
	if msgs[3].Role != ai.RoleUser || msgs[3].Text() != "second question" {
		t.Errorf("final message = %v %q, want user question", msgs[3].Role, msgs[3].Text())
	}

	system := msgs[0].Text()
	if !strings.Contains(system, "chunk one\n\nchunk two") {
		t.Errorf("system message lacks blank-line-joined context: %q", system)
	}
	if strings.Index(system, "question-answering") > strings.Index(system, "chunk one") {
		t.Error("instruction must precede the context block")
	}
}

func TestBuildPromptUsesOriginalQuestion(t *testing.T) {
	// The rewritten query drives retrieval only; the prompt always carries
	// the question the user actually asked.
	msgs := BuildPrompt(nil, nil, "what about it?", 0)
	if got := msgs[len(msgs)-1].Text(); got != "what about it?" {
		t.Errorf("final message = %q, want the original question", got)
	}
}

func TestBuildPromptEmptyContextStillPresent(t *testing.T) {
	msgs := BuildPrompt(nil, nil, "q", 0)

	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	system := msgs[0].Text()
	if !strings.HasSuffix(system, "\n\n") {
		t.Errorf("system message should end with empty context block, got %q", system)
	}
	if !strings.Contains(system, "question-answering") {
		t.Errorf("system message lacks the answer instruction: %q", system)
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	history := []*ai.Message{ai.NewUserMessage(ai.NewTextPart("q1"))}
	docs := []knowledge.Result{chunk("a", "alpha"), chunk("b", "beta")}

	first := BuildPrompt(history, docs, "q2", 100)
	for i := 0; i < 5; i++ {
		again := BuildPrompt(history, docs, "q2", 100)
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d messages, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].Text() != first[j].Text() || again[j].Role != first[j].Role {
				t.Fatalf("run %d message %d differs: %q vs %q", i, j, again[j].Text(), first[j].Text())
			}
		}
	}
}

func TestBuildPromptTruncatesContext(t *testing.T) {
	docs := []knowledge.Result{chunk("a", strings.Repeat("x", 50))}

	msgs := BuildPrompt(nil, docs, "q", 10)
	system := msgs[0].Text()
	want := answerInstruction + "\n\n" + strings.Repeat("x", 10)
	if system != want {
		t.Errorf("truncated system = %d chars, want %d", len(system), len(want))
	}
}

func TestContextBlockJoinsInRetrievalOrder(t *testing.T) {
	docs := []knowledge.Result{chunk("z", "last ranked first"), chunk("a", "second")}
	got := contextBlock(docs, 0)
	if got != "last ranked first\n\nsecond" {
		t.Errorf("contextBlock = %q, want retrieval order preserved", got)
	}
}
