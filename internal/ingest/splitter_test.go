package ingest

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter(100, 20)
	if got := s.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
	if got := s.Split("  \n\t"); got != nil {
		t.Errorf("Split(whitespace) = %v, want nil", got)
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)
	got := s.Split("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("Split = %v, want single chunk %q", got, "hello world")
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(20, 5)
	got := s.Split("alpha beta gamma\n\ndelta epsilon zeta")

	want := []string{"alpha beta gamma", "delta epsilon zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %v, want %v", got, want)
	}
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	s := NewSplitter(10, 4)
	got := s.Split("aaa bbb ccc ddd eee")

	want := []string{"aaa bbb", "bbb ccc", "ccc ddd", "ddd eee"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %v, want %v", got, want)
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("some reasonably sized words in a long running sentence ")
		if i%10 == 9 {
			b.WriteString("\n\n")
		}
	}

	s := NewSplitter(100, 20)
	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Errorf("chunk %d has %d runes, want <= 100", i, n)
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitHardSplitsUnbrokenText(t *testing.T) {
	s := NewSplitter(10, 2)
	chunks := s.Split(strings.Repeat("x", 25))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 10 {
			t.Errorf("chunk %d has %d runes, want <= 10", i, len(c))
		}
	}
	if strings.Join(chunks, "") != strings.Repeat("x", 25) {
		t.Error("hard split lost characters")
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := "one two three\n\nfour five six seven\n\neight nine ten"
	s := NewSplitter(15, 5)

	first := s.Split(text)
	for i := 0; i < 5; i++ {
		if again := s.Split(text); !reflect.DeepEqual(again, first) {
			t.Fatalf("run %d differs: %v vs %v", i, again, first)
		}
	}
}

func TestNewSplitterFallsBackOnBadConfig(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.chunkSize != DefaultChunkSize {
		t.Errorf("chunkSize = %d, want default %d", s.chunkSize, DefaultChunkSize)
	}
	if s.overlap != DefaultChunkOverlap {
		t.Errorf("overlap = %d, want default %d", s.overlap, DefaultChunkOverlap)
	}

	// Overlap must stay below the chunk size.
	s = NewSplitter(100, 100)
	if s.overlap >= s.chunkSize {
		t.Errorf("overlap %d not below chunk size %d", s.overlap, s.chunkSize)
	}
}
