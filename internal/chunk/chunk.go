// Package chunk splits raw document text into bounded, overlapping
// segments suitable for embedding.
//
// The splitter prefers semantic boundaries: it tries separators from
// coarsest (paragraph break) to finest (single character) and merges the
// resulting pieces back up to the chunk size, carrying a configured
// overlap from the end of each chunk into the start of the next. No
// emitted chunk ever exceeds the configured size.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default chunking parameters, used when a Splitter is constructed with
// out-of-range values.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// defaultSeparators is the boundary ladder, coarsest first. The empty
// string is the character-level fallback guaranteeing the size bound.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Document is a crawled document handed to the pipeline. It has no
// identity beyond content and source.
type Document struct {
	Content  string
	Source   string
	Metadata map[string]any
}

// Splitter splits text into chunks of at most size characters with the
// configured overlap between adjacent chunks.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// NewSplitter creates a Splitter. A non-positive size falls back to
// DefaultChunkSize; an overlap that is negative or not smaller than the
// size is reduced to size/4.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &Splitter{
		size:       size,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Split splits text into chunks. Empty or whitespace-only input yields
// no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

// split recursively splits text using the first separator present in it,
// descending to finer separators for pieces that still exceed the size.
func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	remaining := []string{}
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			remaining = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return s.splitRunes(text)
	}

	var chunks []string
	var pending []string
	for _, piece := range strings.Split(text, sep) {
		if utf8.RuneCountInString(piece) <= s.size {
			pending = append(pending, piece)
			continue
		}
		// Piece is oversized: flush what fits, then recurse into it.
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, sep)...)
			pending = nil
		}
		chunks = append(chunks, s.split(piece, remaining)...)
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, sep)...)
	}
	return chunks
}

// merge greedily joins pieces (each already within the size bound) into
// chunks of at most size characters, retaining overlap characters worth
// of trailing pieces as the start of the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks []string
	var current []string
	total := 0

	joinedLen := func(extra int) int {
		n := total + extra
		if len(current) > 0 {
			n += sepLen
		}
		return n
	}

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)

		if joinedLen(pieceLen) > s.size && total > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Drop leading pieces until what remains fits inside the
			// overlap budget and leaves room for the incoming piece.
			for total > s.overlap || (joinedLen(pieceLen) > s.size && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}

		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += pieceLen
	}

	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitRunes is the character-level fallback: fixed windows of size runes
// advanced by size-overlap.
func (s *Splitter) splitRunes(text string) []string {
	runes := []rune(text)
	step := s.size - s.overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// GenerateID derives a deterministic chunk id from the parent document's
// content, its source tag, and the chunk index. Re-indexing identical
// content yields the same ids, which is what makes redundant indexing
// an idempotent upsert.
func GenerateID(content, source string, index int) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s_%s_%d", source, hex.EncodeToString(sum[:])[:12], index)
}

// Process chunks each document's content independently and returns one
// (text, metadata, id) triple per emitted chunk, all three slices of
// equal length. Empty documents are skipped. Each chunk's metadata is the
// parent document's metadata plus source, chunk_index and total_chunks.
func (s *Splitter) Process(docs []Document) (texts []string, metadatas []map[string]any, ids []string) {
	for _, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}

		source := doc.Source
		if source == "" {
			source = "unknown"
		}

		chunks := s.Split(doc.Content)
		for i, text := range chunks {
			metadata := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["source"] = source
			metadata["chunk_index"] = i
			metadata["total_chunks"] = len(chunks)

			texts = append(texts, text)
			metadatas = append(metadatas, metadata)
			ids = append(ids, GenerateID(doc.Content, source, i))
		}
	}
	return texts, metadatas, ids
}
