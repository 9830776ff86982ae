package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(10, 10)
	require.Error(t, err)
	assert.Equal(t, models.KindConfigError, models.KindOf(err))

	_, err = New(10, 15)
	require.Error(t, err)

	_, err = New(-1, 0)
	require.Error(t, err)

	_, err = New(10, -1)
	require.Error(t, err)

	// chunk_size 0 disables splitting and is not an error
	_, err = New(0, 0)
	require.NoError(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	s, err := New(100, 10)
	require.NoError(t, err)
	assert.Empty(t, s.Split("a.txt", ""))
}

func TestSplitShortText(t *testing.T) {
	s, err := New(100, 10)
	require.NoError(t, err)

	chunks := s.Split("a.txt", "short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 10, chunks[0].EndOffset)
	assert.Equal(t, "a.txt_0", chunks[0].ChunkID)
}

func TestSplitDisabled(t *testing.T) {
	s, err := New(0, 0)
	require.NoError(t, err)

	long := strings.Repeat("paragraph one.\n\n", 50)
	chunks := s.Split("a.txt", long)
	require.Len(t, chunks, 1)
	assert.Equal(t, long, chunks[0].Text)
}

func TestSplitDeterminism(t *testing.T) {
	s, err := New(40, 8)
	require.NoError(t, err)

	text := "First paragraph of the document.\n\nSecond paragraph follows here. It has two sentences.\nAnd a trailing line."
	a := s.Split("doc", text)
	b := s.Split("doc", text)
	assert.Equal(t, a, b)
}

func TestSplitCoverage(t *testing.T) {
	const overlap = 7
	s, err := New(50, overlap)
	require.NoError(t, err)

	text := "Alpha beta gamma delta.\n\nEpsilon zeta eta theta iota kappa lambda. Mu nu xi omicron pi rho sigma tau upsilon phi chi psi omega and then some more text to force several chunks."
	chunks := s.Split("greek", text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		// Each chunk is a verbatim substring at its declared offsets.
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
		assert.LessOrEqual(t, len(c.Text), 50)
		assert.Equal(t, i, c.Index)

		if i > 0 {
			assert.Equal(t, chunks[i-1].EndOffset-overlap, c.StartOffset)
		}
	}

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)

	// Non-overlapping regions reconstruct the original text exactly.
	var rebuilt strings.Builder
	for i, c := range chunks {
		start := c.StartOffset
		if i > 0 {
			start += overlap
		}
		rebuilt.WriteString(text[start:c.EndOffset])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitPrefersSemanticBoundaries(t *testing.T) {
	s, err := New(30, 0)
	require.NoError(t, err)

	text := "One sentence here. Another sentence there. And a third one."
	chunks := s.Split("doc", text)
	require.Greater(t, len(chunks), 1)

	// First chunk should end on the sentence boundary, not mid-word.
	assert.Equal(t, "One sentence here. ", chunks[0].Text)
}

func TestSplitMultiByteText(t *testing.T) {
	s, err := New(10, 2)
	require.NoError(t, err)

	// Twenty 3-byte runes and no separators, forcing hard cuts.
	text := strings.Repeat("日", 20)
	chunks := s.Split("cjk.txt", text)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 10)
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
	}

	// Overlap is two characters, six bytes here.
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndOffset-6, chunks[i].StartOffset)
	}

	// Non-overlapping regions reconstruct the original text exactly.
	var rebuilt strings.Builder
	prevEnd := 0
	for _, c := range chunks {
		start := c.StartOffset
		if start < prevEnd {
			start = prevEnd
		}
		rebuilt.WriteString(text[start:c.EndOffset])
		prevEnd = c.EndOffset
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestSplitMixedWidthBoundaries(t *testing.T) {
	s, err := New(12, 3)
	require.NoError(t, err)

	text := "Première règle: café. Deuxième règle: déjà vu. Troisième règle ici."
	chunks := s.Split("règles.txt", text)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 12)
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}

func TestSplitPolicyScenario(t *testing.T) {
	s, err := New(30, 5)
	require.NoError(t, err)

	text := "Leave policy: 20 days annual leave. Sick leave: 10 days."
	chunks := s.Split("policy.txt", text)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndOffset-5, chunks[i].StartOffset)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndOffset)
}
