package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by a Source when the requested document does not
// exist.
var ErrNotFound = errors.New("corpus document not found")

// Source reads the raw text of a corpus document.
type Source interface {
	Read(ctx context.Context, id string) (string, error)
}

// FileSource reads a plain-text document from the local filesystem. The id
// passed to Read is ignored; the document is always Path.
type FileSource struct {
	Path string
}

func (f FileSource) Read(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Clean(f.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, f.Path)
		}
		return "", fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return string(data), nil
}
