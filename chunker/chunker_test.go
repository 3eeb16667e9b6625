package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = New(10, -1)
	assert.ErrorIs(t, err, ErrInvalidChunkOverlap)

	_, err = New(10, 11)
	assert.ErrorIs(t, err, ErrInvalidChunkOverlap)

	s, err := New(10, 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparators(), s.Separators)
}

func TestSplit_EmptyInput(t *testing.T) {
	s := Default()
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("  \n\n \t"))
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	s := Default()
	got := s.Split("  Short clause about indemnity.\n\nSecond paragraph.  ")
	assert.Equal(t, []string{"Short clause about indemnity.\n\nSecond paragraph."}, got)
}

func TestSplit_WordBoundaries(t *testing.T) {
	s, err := New(10, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, s.Split("aaaa bbbb cccc dddd"))
}

func TestSplit_Overlap(t *testing.T) {
	s, err := New(10, 5)
	require.NoError(t, err)

	got := s.Split("aa bb cc dd ee ff")
	assert.Equal(t, []string{"aa bb cc", "cc dd ee", "ee ff"}, got)
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	s, err := New(20, 0)
	require.NoError(t, err)

	got := s.Split("first paragraph\n\nsecond paragraph")
	assert.Equal(t, []string{"first paragraph", "second paragraph"}, got)
}

func TestSplit_CharacterFallback(t *testing.T) {
	s, err := New(5, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"abcde", "fgh", "ij"}, s.Split("abcdefgh ij"))
}

func TestSplit_OversizedAtomEmittedWhole(t *testing.T) {
	s, err := New(5, 0, "\n\n", "\n", " ")
	require.NoError(t, err)

	assert.Equal(t, []string{"abcdefgh", "ij"}, s.Split("abcdefgh ij"))
}

func TestSplit_CountsRunes(t *testing.T) {
	s, err := New(4, 0)
	require.NoError(t, err)

	got := s.Split("ünïcödé")
	assert.Equal(t, []string{"ünïc", "ödé"}, got)
}

func wordCorpus(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			if i%10 == 0 {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		if i%40 == 0 && i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "w%d", i)
	}
	return b.String()
}

func TestSplit_CoverageWithoutGaps(t *testing.T) {
	text := wordCorpus(600)
	s, err := New(120, 20)
	require.NoError(t, err)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	prevEnd := 0
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120, "chunk %d too long", i)

		idx := strings.Index(text, c)
		require.GreaterOrEqual(t, idx, 0, "chunk %d is not a substring", i)
		if idx > prevEnd {
			assert.Empty(t, strings.TrimSpace(text[prevEnd:idx]), "gap before chunk %d", i)
		}
		prevEnd = idx + len(c)
	}
	assert.Empty(t, strings.TrimSpace(text[prevEnd:]))
}

func TestSplit_Deterministic(t *testing.T) {
	text := wordCorpus(400)
	s := Default()
	assert.Equal(t, s.Split(text), s.Split(text))
}
