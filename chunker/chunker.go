package chunker

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var (
	ErrInvalidChunkSize    = errors.New("chunk size must be positive")
	ErrInvalidChunkOverlap = errors.New("chunk overlap must be between 0 and chunk size")
)

// DefaultSeparators returns the boundary priority list: paragraph, line, word,
// then single characters
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", " ", ""}
}

// Splitter cuts text into overlapping chunks of at most ChunkSize characters,
// preferring the earliest separator that keeps pieces under the limit.
// Lengths are counted in runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// New creates a Splitter. With no separators, DefaultSeparators is used.
func New(chunkSize, chunkOverlap int, separators ...string) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap > chunkSize {
		return nil, ErrInvalidChunkOverlap
	}
	if len(separators) == 0 {
		separators = DefaultSeparators()
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   separators,
	}, nil
}

// Default returns a Splitter with the default size, overlap and separators
func Default() *Splitter {
	s, _ := New(DefaultChunkSize, DefaultChunkOverlap)
	return s
}

// Split returns the ordered chunks of text. Empty or whitespace-only input
// yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	var chunks []string

	separator := ""
	var rest []string
	if len(separators) > 0 {
		separator = separators[len(separators)-1]
	}
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if length(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			// atomic piece larger than the limit, emitted whole
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge packs pieces into chunks, carrying up to ChunkOverlap characters of
// trailing pieces into the next chunk
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := length(piece)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := join(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := join(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator splits text on sep, keeping sep at the start of the piece
// that follows it. Empty pieces are dropped. An empty sep splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
