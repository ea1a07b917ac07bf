package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnavailable reports that the corpus could not be read. Callers treat it
// as an empty corpus, not as a request failure.
var ErrUnavailable = errors.New("corpus unavailable")

// Corpus is an immutable loaded document and its chunks.
type Corpus struct {
	SourceID    string
	Text        string
	Chunks      []Chunk
	Fingerprint string
	LoadedAt    time.Time
}

// Loader reads the corpus from its Source at most once. Concurrent callers
// of Load during the first read wait for it instead of reading again. Failed
// reads are not cached, so a later call retries the source.
type Loader struct {
	source    Source
	sourceID  string
	chunkSize int

	mu      sync.Mutex
	current atomic.Pointer[Corpus]
	onLoad  func(*Corpus)
	logger  *slog.Logger
}

// NewLoader creates a Loader for the document id in source.
func NewLoader(source Source, sourceID string, chunkSize int) *Loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Loader{
		source:    source,
		sourceID:  sourceID,
		chunkSize: chunkSize,
		logger:    slog.Default().With("component", "corpus-loader", "source_id", sourceID),
	}
}

// OnLoad registers a callback invoked once after the corpus loads.
func (l *Loader) OnLoad(fn func(*Corpus)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLoad = fn
}

// Load returns the cached corpus, reading and chunking it on first use.
// When the source cannot be read the error wraps ErrUnavailable.
func (l *Loader) Load(ctx context.Context) (*Corpus, error) {
	if c := l.current.Load(); c != nil {
		return c, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.current.Load(); c != nil {
		return c, nil
	}

	start := time.Now()
	text, err := l.source.Read(ctx, l.sourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.logger.Warn("corpus document missing, continuing without context", "error", err)
		} else {
			l.logger.Error("corpus read failed, continuing without context", "error", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	sum := sha256.Sum256([]byte(text))
	c := &Corpus{
		SourceID:    l.sourceID,
		Text:        text,
		Chunks:      Split(text, l.chunkSize),
		Fingerprint: hex.EncodeToString(sum[:8]),
		LoadedAt:    time.Now().UTC(),
	}
	l.current.Store(c)
	l.logger.Info("corpus loaded",
		"chunk_count", len(c.Chunks),
		"chars", len(text),
		"fingerprint", c.Fingerprint,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if l.onLoad != nil {
		l.onLoad(c)
	}
	return c, nil
}

// Loaded returns the corpus if it has already been loaded, without touching
// the source.
func (l *Loader) Loaded() (*Corpus, bool) {
	c := l.current.Load()
	return c, c != nil
}

// SourceID returns the document id the loader reads.
func (l *Loader) SourceID() string {
	return l.sourceID
}
