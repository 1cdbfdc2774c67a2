package tokenizer

import (
	"fmt"

	"eval-orchestrator/internal/domain"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer adapts a tiktoken encoding to the domain Tokenizer
// interface. tiktoken is byte-level BPE, so Decode(Encode(s)) == s.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

var _ domain.Tokenizer = (*TiktokenTokenizer)(nil)

// New loads the named encoding, e.g. "cl100k_base".
func New(encodingName string) (*TiktokenTokenizer, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encodingName, err)
	}
	return &TiktokenTokenizer{encoding: encoding}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}
