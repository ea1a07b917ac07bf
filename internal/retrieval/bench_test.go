package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
)

var benchWords = strings.Fields("employees vacation policy remote work expense reports travel " +
	"laptop security training budget approval manager hours certificate reimbursement")

func syntheticText(words int) string {
	var sb strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(benchWords[(i*7)%len(benchWords)])
		if i%13 == 12 {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func BenchmarkNormalize(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"short", "vacation policy?"},
		{"sentence", "How many vacation days can I carry over into next year, and who approves it?"},
		{"long", syntheticText(200)},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Normalize(q.query)
			}
		})
	}
}

func BenchmarkRetrieveCorpusSize(b *testing.B) {
	terms := Normalize("vacation policy for remote travel")
	for _, words := range []int{1_000, 10_000, 100_000} {
		chunks := corpus.Split(syntheticText(words), corpus.DefaultChunkSize)
		b.Run(fmt.Sprintf("chunks_%d", len(chunks)), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				Retrieve(terms, chunks, DefaultTopK)
			}
		})
	}
}

func BenchmarkIndexSearchParallel(b *testing.B) {
	path := filepath.Join(b.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte(syntheticText(20_000)), 0o644); err != nil {
		b.Fatal(err)
	}
	ix := NewIndex(corpus.NewLoader(corpus.FileSource{Path: path}, "bench", 0), nil, DefaultTopK, nil)
	ctx := context.Background()
	if _, err := ix.Search(ctx, "warm up"); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ix.Search(ctx, "expense reports approval")
		}
	})
}
