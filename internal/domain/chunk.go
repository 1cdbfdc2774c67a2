package domain

// Chunk is a token-bounded slice of a source document. StartChar and
// EndChar are byte offsets into the normalized document text; when the
// chunk begins with overlap carried from its predecessor, StartChar
// points at the first overlapped byte.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	StartChar  int
	EndChar    int
}

// Tokenizer counts and round-trips tokens for a fixed encoding.
// Decode(Encode(s)) must reproduce s for the chunker's overlap
// construction to stay verbatim.
type Tokenizer interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// Chunker splits document text into token-bounded chunks. Pure and
// deterministic; never fails on valid UTF-8 text.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
}
