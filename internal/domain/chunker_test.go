package domain_test

import (
	"strings"
	"testing"

	"eval-orchestrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeTokenizer treats every rune as one token. It is lossless, so the
// chunker's decode-based overlap and slicing are exact in tests.
type runeTokenizer struct{}

func (runeTokenizer) Count(text string) int { return len([]rune(text)) }

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes)
}

func TestNewTokenChunker_Validation(t *testing.T) {
	_, err := domain.NewTokenChunker(runeTokenizer{}, 0, 0)
	assert.Error(t, err)

	_, err = domain.NewTokenChunker(runeTokenizer{}, 100, 100)
	assert.Error(t, err)

	_, err = domain.NewTokenChunker(runeTokenizer{}, 100, -1)
	assert.Error(t, err)

	_, err = domain.NewTokenChunker(runeTokenizer{}, 100, 20)
	assert.NoError(t, err)
}

func TestTokenChunker_EmptyInput(t *testing.T) {
	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 100, 20)
	require.NoError(t, err)

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		chunks, err := chunker.Chunk(input)
		assert.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestTokenChunker_Reconstruction(t *testing.T) {
	text := "The first paragraph talks about storage engines. It has two sentences.\n\n" +
		"The second paragraph covers query planning in some depth and keeps going " +
		"for a while so that it will not fit into a single chunk together with its neighbors.\n\n" +
		"A third paragraph closes the document."

	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 60, 10)
	require.NoError(t, err)

	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	normalized := domain.NormalizeWhitespace(text)

	// Every chunk is a verbatim slice of the normalized text.
	for _, c := range chunks {
		assert.Equal(t, normalized[c.StartChar:c.EndChar], c.Content)
	}

	// Stripping each non-first chunk's overlapped prefix and joining in
	// order reproduces the normalized source.
	var rebuilt strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		if i == 0 {
			rebuilt.WriteString(c.Content)
		} else {
			assert.GreaterOrEqual(t, prevEnd, c.StartChar, "chunk %d must start at or before the previous end", i)
			rebuilt.WriteString(normalized[prevEnd:c.EndChar])
		}
		prevEnd = c.EndChar
	}
	assert.Equal(t, normalized, rebuilt.String())
}

func TestTokenChunker_Idempotence(t *testing.T) {
	text := "Alpha beta gamma.   Delta epsilon zeta!\n\n\n\nEta theta iota kappa lambda mu. " +
		"Nu xi omicron pi rho sigma tau upsilon."

	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 40, 8)
	require.NoError(t, err)

	first, err := chunker.Chunk(text)
	require.NoError(t, err)

	// Re-chunking the already-normalized text yields the same boundaries.
	again, err := chunker.Chunk(domain.NormalizeWhitespace(text))
	require.NoError(t, err)

	require.Equal(t, len(first), len(again))
	for i := range first {
		assert.Equal(t, first[i].StartChar, again[i].StartChar)
		assert.Equal(t, first[i].EndChar, again[i].EndChar)
		assert.Equal(t, first[i].Content, again[i].Content)
	}
}

func TestTokenChunker_LargeDocumentScenario(t *testing.T) {
	// 2500 tokens of ordinary prose under a 1000/200 budget.
	text := strings.TrimSpace(strings.Repeat("token one two three four. ", 100)) // 2599 chars with separators trimmed
	text = text[:2500]

	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 1000, 200)
	require.NoError(t, err)

	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(chunks), 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 1200)
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		shared := string(prev[len(prev)-190:])
		assert.True(t, strings.HasPrefix(chunks[i].Content, string(prev[len(prev)-200:])),
			"chunk %d must begin with the previous chunk's overlap", i)
		assert.Contains(t, chunks[i].Content, shared)
	}
}

func TestTokenChunker_AtomicUnit(t *testing.T) {
	// A single 120-rune word cannot respect a 50-token budget at any
	// word or sentence boundary; it is cut by token count instead.
	word := strings.Repeat("x", 120)

	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 50, 10)
	require.NoError(t, err)

	chunks, err := chunker.Chunk(word)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(chunks), 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, 50+10)
	}
}

func TestTokenChunker_SingleChunk(t *testing.T) {
	chunker, err := domain.NewTokenChunker(runeTokenizer{}, 500, 50)
	require.NoError(t, err)

	chunks, err := chunker.Chunk("Short document.")
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Short document.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, len("Short document."), chunks[0].EndChar)
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses space runs", "a   b\t\tc", "a b c"},
		{"collapses blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"normalizes crlf", "a\r\nb\rc", "a\nb\nc"},
		{"strips line edges", "a  \n  b", "a\nb"},
		{"trims ends", "  hello  ", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.NormalizeWhitespace(tt.in))
		})
	}
}
