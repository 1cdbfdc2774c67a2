package textfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"eval-orchestrator/internal/domain"
)

// Provider reads plain-text documents from a directory subtree.
// Extraction of rich formats (PDF, HTML) belongs in a separate service
// feeding text through the same interface.
type Provider struct {
	root string
}

var _ domain.DocumentTextProvider = (*Provider)(nil)

func New(root string) *Provider {
	return &Provider{root: root}
}

func (p *Provider) Extract(_ context.Context, path string) (string, error) {
	full := filepath.Join(p.root, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, filepath.Clean(p.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the document root", path)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read document %q: %w", path, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("document %q is not valid UTF-8", path)
	}
	return string(raw), nil
}
