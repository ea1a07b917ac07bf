package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSource struct {
	text  string
	err   error
	reads atomic.Int32
}

func (s *countingSource) Read(ctx context.Context, id string) (string, error) {
	s.reads.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func TestLoaderLoadsOnce(t *testing.T) {
	src := &countingSource{text: "alpha beta gamma delta"}
	l := NewLoader(src, "doc", 11)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background()); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := src.reads.Load(); n != 1 {
		t.Errorf("expected 1 read, got %d", n)
	}
	c, ok := l.Loaded()
	if !ok {
		t.Fatal("expected corpus to be loaded")
	}
	if len(c.Chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(c.Chunks))
	}
	if c.Fingerprint == "" {
		t.Error("expected fingerprint")
	}
}

func TestLoaderUnavailableIsRetried(t *testing.T) {
	src := &countingSource{err: ErrNotFound}
	l := NewLoader(src, "doc", 0)

	_, err := l.Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
	if _, err := l.Load(context.Background()); err == nil {
		t.Error("expected the second attempt to fail too")
	}
	if _, ok := l.Loaded(); ok {
		t.Error("expected nothing cached after failed reads")
	}

	src.err = nil
	src.text = "now present"
	c, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(c.Chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(c.Chunks))
	}
	if n := src.reads.Load(); n != 3 {
		t.Errorf("expected 3 reads, got %d", n)
	}
}

func TestLoaderOnLoadCalledOnce(t *testing.T) {
	l := NewLoader(&countingSource{text: "x y z"}, "doc", 0)
	calls := 0
	l.OnLoad(func(*Corpus) { calls++ })
	l.Load(context.Background())
	l.Load(context.Background())
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.txt")
	if err := os.WriteFile(path, []byte("office hours are nine to five"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := FileSource{Path: path}.Read(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if text != "office hours are nine to five" {
		t.Errorf("unexpected text %q", text)
	}

	_, err = FileSource{Path: filepath.Join(dir, "missing.txt")}.Read(context.Background(), "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
