// Package corpus loads the knowledge document once and splits it into
// bounded, word-aligned chunks for retrieval.
package corpus

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the maximum chunk length in characters.
const DefaultChunkSize = 800

// Chunk is a contiguous, word-aligned piece of the corpus.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Split packs the whitespace-delimited words of text greedily into chunks of
// at most maxSize characters, joining words with a single space. A word
// longer than maxSize becomes a chunk of its own. Empty or whitespace-only
// text yields no chunks. A non-positive maxSize means DefaultChunkSize.
func Split(text string, maxSize int) []Chunk {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks []Chunk
		buf    strings.Builder
		size   int
	)
	flush := func() {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: buf.String()})
		buf.Reset()
		size = 0
	}
	for _, word := range words {
		n := utf8.RuneCountInString(word)
		if size > 0 && size+1+n > maxSize {
			flush()
		}
		if size > 0 {
			buf.WriteByte(' ')
			size++
		}
		buf.WriteString(word)
		size += n
	}
	if size > 0 {
		flush()
	}
	return chunks
}
