package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/koopa0/ragline/internal/history"
	"github.com/koopa0/ragline/internal/log"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

type fakeVision struct {
	mu     sync.Mutex
	answer string
	model  string
	msgs   []*ai.Message
}

func (f *fakeVision) GenerateOnce(_ context.Context, modelName string, msgs []*ai.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = modelName
	f.msgs = msgs
	return f.answer, nil
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, pngHeader, 0o600); err != nil {
		t.Fatalf("writing test image: %v", err)
	}
	return path
}

func newVisionFixture(t *testing.T, vision *fakeVision) *Pipeline {
	t.Helper()
	p, err := New(Config{
		History:     history.New(10, log.NewNop()),
		Rewriter:    &fakeRewriter{},
		Retriever:   &fakeRetriever{},
		Generator:   &fakeGen{chunks: []string{"ok"}},
		Logger:      log.NewNop(),
		Vision:      vision,
		VisionModel: "ollama/llava:13b",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestDescribeSendsImageAndQuestion(t *testing.T) {
	vision := &fakeVision{answer: "a red square"}
	p := newVisionFixture(t, vision)

	answer, err := p.Describe(context.Background(), writeTestImage(t), "what color?")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if answer != "a red square" {
		t.Errorf("answer = %q", answer)
	}
	if vision.model != "ollama/llava:13b" {
		t.Errorf("model = %q, want the vision model", vision.model)
	}

	if len(vision.msgs) != 1 {
		t.Fatalf("prompt has %d messages, want 1", len(vision.msgs))
	}
	parts := vision.msgs[0].Content
	if len(parts) != 2 {
		t.Fatalf("message has %d parts, want image + question", len(parts))
	}
	if !parts[0].IsMedia() || !strings.HasPrefix(parts[0].Text, "data:image/png;base64,") {
		t.Errorf("first part is not a png data uri")
	}
	if parts[1].Text != "what color?" {
		t.Errorf("question part = %q", parts[1].Text)
	}
}

func TestDescribeDefaultQuestion(t *testing.T) {
	vision := &fakeVision{answer: "described"}
	p := newVisionFixture(t, vision)

	if _, err := p.Describe(context.Background(), writeTestImage(t), "  "); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got := vision.msgs[0].Content[1].Text; !strings.Contains(got, "Describe this image") {
		t.Errorf("default question = %q", got)
	}
}

func TestDescribeRejectsNonImage(t *testing.T) {
	p := newVisionFixture(t, &fakeVision{})

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := p.Describe(context.Background(), path, "q"); err == nil {
		t.Error("Describe accepted a non-image file")
	}
}

func TestDescribeMissingFile(t *testing.T) {
	p := newVisionFixture(t, &fakeVision{})
	if _, err := p.Describe(context.Background(), "/nonexistent/image.png", "q"); err == nil {
		t.Error("Describe of missing file succeeded")
	}
}
