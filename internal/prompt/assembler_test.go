package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
)

type stubRetriever struct {
	chunks []retrieval.ScoredChunk
	err    error
	calls  int
}

func (s *stubRetriever) Search(ctx context.Context, query string) ([]retrieval.ScoredChunk, error) {
	s.calls++
	return s.chunks, s.err
}

func scored(texts ...string) []retrieval.ScoredChunk {
	out := make([]retrieval.ScoredChunk, len(texts))
	for i, t := range texts {
		out[i] = retrieval.ScoredChunk{Chunk: corpus.Chunk{Index: i, Text: t}, Score: len(texts) - i}
	}
	return out
}

func TestBuildGrounded(t *testing.T) {
	store := memory.NewStore()
	store.Append("alice", "hello", "hi there")
	r := &stubRetriever{chunks: scored("Refunds take 14 days.", "Refunds need a receipt.")}
	a := NewAssembler(r, store)

	res, err := a.Build(context.Background(), "alice", "How do refunds work?", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Policy != PolicyGrounded {
		t.Errorf("expected grounded policy, got %s", res.Policy)
	}
	if len(res.Sources) != 2 || res.Sources[0] != "Refunds take 14 days." {
		t.Errorf("unexpected sources %v", res.Sources)
	}
	if len(res.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(res.Messages))
	}
	sys := res.Messages[0]
	if sys.Role != RoleSystem {
		t.Errorf("expected system first, got %s", sys.Role)
	}
	for _, src := range res.Sources {
		if !strings.Contains(sys.Content, src) {
			t.Errorf("system message missing excerpt %q", src)
		}
	}
	if !strings.Contains(sys.Content, "only") {
		t.Error("grounded instruction should restrict the answer to the excerpts")
	}
	if res.Messages[1] != (Message{RoleUser, "hello"}) || res.Messages[2] != (Message{RoleAssistant, "hi there"}) {
		t.Errorf("history not carried in order: %+v", res.Messages[1:3])
	}
	if last := res.Messages[3]; last != (Message{RoleUser, "How do refunds work?"}) {
		t.Errorf("unexpected final message %+v", last)
	}
}

func TestBuildNoMatch(t *testing.T) {
	a := NewAssembler(&stubRetriever{}, memory.NewStore())

	res, err := a.Build(context.Background(), memory.DefaultSessionID, "quantum chromodynamics", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Policy != PolicyNoMatch {
		t.Errorf("expected no_match policy, got %s", res.Policy)
	}
	if res.Sources == nil || len(res.Sources) != 0 {
		t.Errorf("expected empty non-nil sources, got %v", res.Sources)
	}
	if res.Messages[0].Content != noMatchInstruction {
		t.Errorf("expected no-match instruction, got %q", res.Messages[0].Content)
	}
	if len(res.Messages) != 2 {
		t.Errorf("expected system and user only, got %d", len(res.Messages))
	}
}

func TestBuildGenericSkipsRetrieval(t *testing.T) {
	r := &stubRetriever{chunks: scored("would have matched")}
	a := NewAssembler(r, memory.NewStore())

	res, err := a.Build(context.Background(), "s", "tell me a joke", false)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.calls != 0 {
		t.Errorf("expected no retrieval, got %d calls", r.calls)
	}
	if res.Policy != PolicyGeneric || len(res.Sources) != 0 {
		t.Errorf("expected generic policy with no sources, got %s %v", res.Policy, res.Sources)
	}
	if res.Messages[0].Content != genericInstruction {
		t.Errorf("unexpected system message %q", res.Messages[0].Content)
	}
}

func TestBuildPropagatesRetrieverError(t *testing.T) {
	a := NewAssembler(&stubRetriever{err: context.Canceled}, memory.NewStore())
	if _, err := a.Build(context.Background(), "s", "refund policy", true); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildDoesNotModifyHistory(t *testing.T) {
	store := memory.NewStore()
	a := NewAssembler(&stubRetriever{}, store)
	a.Build(context.Background(), "s", "anything here", true)
	if len(store.History("s")) != 0 {
		t.Error("Build must not append turns")
	}
}

func TestBuildUnavailableCorpusDegradesToNoMatch(t *testing.T) {
	loader := corpus.NewLoader(corpus.FileSource{Path: filepath.Join(t.TempDir(), "missing.txt")}, "kb", 0)
	a := NewAssembler(retrieval.NewIndex(loader, nil, 3, nil), memory.NewStore())

	res, err := a.Build(context.Background(), "s", "vacation policy", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Policy != PolicyNoMatch || len(res.Sources) != 0 {
		t.Errorf("expected no_match with no sources, got %s %v", res.Policy, res.Sources)
	}
}

func TestBuildAgainstRealIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handbook.txt")
	text := "Our vacation policy grants twenty days. The vacation policy resets each January. " +
		strings.Repeat("Unrelated office trivia sentence. ", 40) +
		"Remote work requires manager approval."
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := corpus.NewLoader(corpus.FileSource{Path: path}, "handbook", 120)
	a := NewAssembler(retrieval.NewIndex(loader, nil, 3, nil), memory.NewStore())

	res, err := a.Build(context.Background(), "s", "vacation policy", true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Policy != PolicyGrounded {
		t.Fatalf("expected grounded, got %s", res.Policy)
	}
	if !strings.Contains(res.Sources[0], "vacation policy resets") {
		t.Errorf("expected vacation chunk first, got %q", res.Sources[0])
	}
}
