package retrieval

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
)

// DefaultTopK is the number of chunks returned when no limit is given.
const DefaultTopK = 3

// ScoredChunk is a chunk paired with its relevance score.
type ScoredChunk struct {
	Chunk corpus.Chunk `json:"chunk"`
	Score int          `json:"score"`
}

// Score sums, over terms, the number of non-overlapping case-insensitive
// occurrences of each term in the chunk text. Terms match as raw substrings,
// so "data" also counts inside "database". Terms are expected lowercase, as
// produced by Normalize.
func Score(chunk corpus.Chunk, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	text := strings.ToLower(chunk.Text)
	score := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		score += strings.Count(text, term)
	}
	return score
}

// Retrieve scores every chunk, drops those scoring zero, and returns at most
// topK of the rest ordered by descending score. Equal scores keep corpus
// order. Empty terms return no results. A non-positive topK means
// DefaultTopK.
func Retrieve(terms []string, chunks []corpus.Chunk, topK int) []ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(terms) == 0 || len(chunks) == 0 {
		return []ScoredChunk{}
	}
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if s := Score(c, terms); s > 0 {
			scored = append(scored, ScoredChunk{Chunk: c, Score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
