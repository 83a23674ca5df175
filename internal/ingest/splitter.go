package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, sized for embedding models with small
// context windows.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// defaultSeparators are tried in order: paragraph breaks first, then
// lines, then words, then a hard character split as a last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text into overlapping chunks along natural boundaries.
// Splitting is deterministic: the same input always yields the same chunks.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter creates a splitter with the given chunk size and overlap,
// both measured in runes. Out-of-range values fall back to the defaults.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split breaks text into chunks of at most the configured size.
// Consecutive chunks share up to the configured overlap so context
// spanning a boundary is not lost.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var remaining []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			remaining = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = hardSplit(text, s.chunkSize)
	} else {
		parts = strings.Split(text, sep)
	}

	var chunks []string
	var fitting []string
	for _, part := range parts {
		if utf8.RuneCountInString(part) < s.chunkSize {
			fitting = append(fitting, part)
			continue
		}
		// Oversized part: flush what fits, then recurse with finer separators.
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, sep)...)
			fitting = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, part)
		} else {
			chunks = append(chunks, s.split(part, remaining)...)
		}
	}
	if len(fitting) > 0 {
		chunks = append(chunks, s.merge(fitting, sep)...)
	}
	return chunks
}

// merge joins small parts back together up to chunkSize, carrying the
// tail of each chunk into the next as overlap.
func (s *Splitter) merge(parts []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks []string
	var window []string
	total := 0

	flush := func() {
		joined := strings.TrimSpace(strings.Join(window, sep))
		if joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if total+n+joinCost(sepLen, len(window)) > s.chunkSize && len(window) > 0 {
			flush()
			// Drop from the front until only the overlap remains.
			for total > s.overlap ||
				(total+n+joinCost(sepLen, len(window)) > s.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(window[0]) + joinCost(sepLen, len(window)-1)
				window = window[1:]
			}
		}
		window = append(window, part)
		total += n + joinCost(sepLen, len(window)-1)
	}
	flush()
	return chunks
}

// joinCost is the separator cost of appending to a window that already
// holds n parts.
func joinCost(sepLen, n int) int {
	if n > 0 {
		return sepLen
	}
	return 0
}

// hardSplit cuts text into fixed-size rune windows. Used only when no
// separator matches, e.g. a single unbroken token longer than chunkSize.
func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var parts []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
