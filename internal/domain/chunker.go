package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	lineEdgeRe   = regexp.MustCompile(` *\n *`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// NormalizeWhitespace collapses space and tab runs to a single space,
// strips spaces adjacent to newlines, and collapses three or more
// newlines to a paragraph break. Chunk offsets are relative to the
// normalized text.
func NormalizeWhitespace(text string) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = spaceRunRe.ReplaceAllString(normalized, " ")
	normalized = lineEdgeRe.ReplaceAllString(normalized, "\n")
	normalized = newlineRunRe.ReplaceAllString(normalized, "\n\n")
	return strings.TrimSpace(normalized)
}

// TokenChunker splits text into chunks of at most size tokens with
// overlap tokens repeated verbatim between consecutive chunks. Boundary
// preference is paragraph, then sentence, then word; only a single word
// longer than the whole budget is cut mid-token-stream.
type TokenChunker struct {
	tokenizer Tokenizer
	size      int
	overlap   int
}

// NewTokenChunker validates the budget and returns a Chunker. Overlap
// must be strictly smaller than size or no forward progress is possible.
func NewTokenChunker(tokenizer Tokenizer, size, overlap int) (*TokenChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d for size %d", overlap, size)
	}
	return &TokenChunker{tokenizer: tokenizer, size: size, overlap: overlap}, nil
}

var _ Chunker = (*TokenChunker)(nil)

// segment is a contiguous byte range of the normalized text whose token
// count fits the budget. Segments tile the text exactly, so joining
// consecutive segments reproduces the source verbatim.
type segment struct {
	start int
	end   int
}

func (c *TokenChunker) Chunk(text string) ([]Chunk, error) {
	normalized := NormalizeWhitespace(text)
	if normalized == "" {
		return []Chunk{}, nil
	}

	segments := c.refine(normalized, 0, len(normalized))

	var chunks []Chunk
	overlapPrefix := ""
	i := 0
	for i < len(segments) {
		j := i
		// Extend the chunk while the next segment still fits the budget.
		for j+1 < len(segments) {
			candidate := overlapPrefix + normalized[segments[i].start:segments[j+1].end]
			if c.tokenizer.Count(candidate) > c.size {
				break
			}
			j++
		}
		content := overlapPrefix + normalized[segments[i].start:segments[j].end]
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: c.tokenizer.Count(content),
			StartChar:  segments[i].start - len(overlapPrefix),
			EndChar:    segments[j].end,
		})
		overlapPrefix = c.overlapSuffix(content)
		i = j + 1
	}
	return chunks, nil
}

// overlapSuffix returns the last overlap tokens of content decoded back
// to their exact source bytes.
func (c *TokenChunker) overlapSuffix(content string) string {
	if c.overlap == 0 {
		return ""
	}
	tokens := c.tokenizer.Encode(content)
	if len(tokens) <= c.overlap {
		return content
	}
	return c.tokenizer.Decode(tokens[len(tokens)-c.overlap:])
}

// refine splits [start,end) into segments of at most size tokens,
// preferring paragraph breaks, then sentence enders, then spaces. A
// range with no finer boundary is cut by token count.
func (c *TokenChunker) refine(text string, start, end int) []segment {
	if start >= end {
		return nil
	}
	if c.tokenizer.Count(text[start:end]) <= c.size {
		return []segment{{start: start, end: end}}
	}
	for _, split := range []func(string, int, int) []segment{
		splitParagraphs,
		splitSentences,
		splitWords,
	} {
		parts := split(text, start, end)
		if len(parts) > 1 {
			var out []segment
			for _, p := range parts {
				out = append(out, c.refine(text, p.start, p.end)...)
			}
			return out
		}
	}
	return c.sliceByTokens(text, start, end)
}

// splitParagraphs cuts after each paragraph break, keeping the break
// bytes attached to the preceding segment.
func splitParagraphs(text string, start, end int) []segment {
	var out []segment
	pos := start
	for pos < end {
		idx := strings.Index(text[pos:end], "\n\n")
		if idx < 0 {
			out = append(out, segment{start: pos, end: end})
			break
		}
		cut := pos + idx + len("\n\n")
		out = append(out, segment{start: pos, end: cut})
		pos = cut
	}
	return out
}

// splitSentences cuts after sentence-ending punctuation followed by
// whitespace, keeping the whitespace attached to the sentence.
func splitSentences(text string, start, end int) []segment {
	var out []segment
	pos := start
	for i := start; i < end-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if next := text[i+1]; next != ' ' && next != '\n' {
				continue
			}
			cut := i + 1
			for cut < end && (text[cut] == ' ' || text[cut] == '\n') {
				cut++
			}
			out = append(out, segment{start: pos, end: cut})
			pos = cut
			i = cut - 1
		}
	}
	if pos < end {
		out = append(out, segment{start: pos, end: end})
	}
	return out
}

// splitWords cuts after each whitespace byte.
func splitWords(text string, start, end int) []segment {
	var out []segment
	pos := start
	for i := start; i < end; i++ {
		if text[i] == ' ' || text[i] == '\n' {
			out = append(out, segment{start: pos, end: i + 1})
			pos = i + 1
		}
	}
	if pos < end {
		out = append(out, segment{start: pos, end: end})
	}
	return out
}

// sliceByTokens cuts an unsplittable range into size-token pieces.
// Byte-level tokenizers decode each token to fixed bytes, so the slice
// offsets are recovered from the decoded piece lengths.
func (c *TokenChunker) sliceByTokens(text string, start, end int) []segment {
	tokens := c.tokenizer.Encode(text[start:end])
	var out []segment
	pos := start
	for off := 0; off < len(tokens); off += c.size {
		hi := off + c.size
		if hi > len(tokens) {
			hi = len(tokens)
		}
		piece := c.tokenizer.Decode(tokens[off:hi])
		out = append(out, segment{start: pos, end: pos + len(piece)})
		pos += len(piece)
	}
	if len(out) > 0 {
		out[len(out)-1].end = end
	}
	return out
}
