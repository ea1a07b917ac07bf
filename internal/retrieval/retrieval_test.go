package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What is the refund policy?", []string{"what", "refund", "policy"}},
		{"hi yo ok", []string{}},
		{"", []string{}},
		{`"Shipping" (international), costs!`, []string{"shipping", "international", "costs"}},
		{"don't", []string{"dont"}},
		{"it's", []string{}},
		{"data DATA data.", []string{"data", "data", "data"}},
		{"e.g.,", []string{}},
		{"c+++ a*b* [abc] a.*b", []string{"c+++", "a*b*", "[abc]"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Normalize(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestScore(t *testing.T) {
	chunk := corpus.Chunk{Text: "The Database stores data. Data about data."}
	tests := []struct {
		name  string
		terms []string
		want  int
	}{
		{"substring and case-insensitive", []string{"data"}, 4},
		{"duplicate terms count twice", []string{"data", "data"}, 8},
		{"no match", []string{"refund"}, 0},
		{"empty terms", nil, 0},
		{"multiple terms", []string{"stores", "about"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(chunk, tt.terms); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestScoreMatchesTermsLiterally(t *testing.T) {
	chunk := corpus.Chunk{Text: `Learn C+++ today. See [ABC] and aab in C:\dir\sub.`}
	tests := []struct {
		name  string
		terms []string
		want  int
	}{
		{"plus signs", []string{"c+++"}, 1},
		{"brackets", []string{"[abc]"}, 1},
		{"backslash", []string{`\dir`}, 1},
		{"star does not repeat", []string{"a*b*"}, 0},
		{"dot does not wildcard", []string{"aa.b"}, 0},
		{"mixed metacharacters", []string{"c+++", "[abc]", "a*b*"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(chunk, tt.terms); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func chunksOf(texts ...string) []corpus.Chunk {
	out := make([]corpus.Chunk, len(texts))
	for i, t := range texts {
		out[i] = corpus.Chunk{Index: i, Text: t}
	}
	return out
}

func indices(results []ScoredChunk) []int {
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Index
	}
	return out
}

func TestRetrieve(t *testing.T) {
	chunks := chunksOf(
		"refund refund",        // 2
		"nothing relevant",     // 0
		"refund window",        // 1
		"refund refund refund", // 3
		"refund again",         // 1
		"refund once more",     // 1
	)

	t.Run("ranked and limited", func(t *testing.T) {
		got := Retrieve([]string{"refund"}, chunks, 3)
		if want := []int{3, 0, 2}; !reflect.DeepEqual(indices(got), want) {
			t.Errorf("expected %v, got %v", want, indices(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Score > got[i-1].Score {
				t.Errorf("results not descending at %d", i)
			}
		}
	})

	t.Run("ties keep corpus order", func(t *testing.T) {
		got := Retrieve([]string{"refund"}, chunks, 10)
		if want := []int{3, 0, 2, 4, 5}; !reflect.DeepEqual(indices(got), want) {
			t.Errorf("expected %v, got %v", want, indices(got))
		}
	})

	t.Run("zero scores excluded", func(t *testing.T) {
		for _, r := range Retrieve([]string{"refund"}, chunks, 10) {
			if r.Score == 0 {
				t.Errorf("zero-score chunk %d returned", r.Chunk.Index)
			}
		}
	})

	t.Run("empty terms", func(t *testing.T) {
		if got := Retrieve(nil, chunks, 3); len(got) != 0 {
			t.Errorf("expected no results, got %v", got)
		}
	})

	t.Run("no chunks", func(t *testing.T) {
		if got := Retrieve([]string{"refund"}, nil, 3); len(got) != 0 {
			t.Errorf("expected no results, got %v", got)
		}
	})

	t.Run("default topK", func(t *testing.T) {
		if got := Retrieve([]string{"refund"}, chunks, 0); len(got) != DefaultTopK {
			t.Errorf("expected %d results, got %d", DefaultTopK, len(got))
		}
	})
}

func TestIndexSearch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.txt")
	text := strings.Repeat("filler words here. ", 60) + "Refunds are issued within fourteen days. " + strings.Repeat("more filler text. ", 60)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	loader := corpus.NewLoader(corpus.FileSource{Path: path}, "kb", 200)
	ix := NewIndex(loader, nil, 3, nil)

	got, err := ix.Search(context.Background(), "How fast are refunds?")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if !strings.Contains(got[0].Chunk.Text, "Refunds") {
		t.Errorf("unexpected chunk %q", got[0].Chunk.Text)
	}

	got, err = ix.Search(context.Background(), "a an to")
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result for short terms, got %v err=%v", got, err)
	}
}

func TestIndexSearchWithoutCorpus(t *testing.T) {
	loader := corpus.NewLoader(corpus.FileSource{Path: filepath.Join(t.TempDir(), "absent.txt")}, "kb", 0)
	ix := NewIndex(loader, nil, 3, nil)

	got, err := ix.Search(context.Background(), "refund policy details")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func BenchmarkRetrieve(b *testing.B) {
	text := strings.Repeat("Information retrieval systems combine tokenization and ranking to find relevant passages quickly. ", 400)
	chunks := corpus.Split(text, corpus.DefaultChunkSize)
	terms := Normalize("How does ranking find relevant passages?")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Retrieve(terms, chunks, DefaultTopK)
	}
}
