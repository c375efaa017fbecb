package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_EmptyInput(t *testing.T) {
	s := NewSplitter(1000, 200)
	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := s.Split(input); len(got) != 0 {
			t.Errorf("Split(%q) = %v, want no chunks", input, got)
		}
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)

	got := s.Split("Hello world, this is a short document.")
	if len(got) != 1 {
		t.Fatalf("Split() = %d chunks, want 1", len(got))
	}
	if got[0] != "Hello world, this is a short document." {
		t.Errorf("chunk = %q", got[0])
	}
}

func TestSplit_SizeBoundHolds(t *testing.T) {
	texts := []string{
		strings.Repeat("word ", 500),
		strings.Repeat("x", 5000), // no separators at all
		strings.Repeat("A sentence here. ", 200),
		strings.Repeat("paragraph one\n\nparagraph two\n\n", 50),
		"short",
	}
	sizes := []struct{ size, overlap int }{
		{100, 20}, {256, 0}, {1000, 200}, {2000, 400},
	}

	for _, cfg := range sizes {
		s := NewSplitter(cfg.size, cfg.overlap)
		for ti, text := range texts {
			for ci, chunk := range s.Split(text) {
				if n := utf8.RuneCountInString(chunk); n > cfg.size {
					t.Errorf("size=%d text=%d chunk=%d: length %d exceeds size", cfg.size, ti, ci, n)
				}
			}
		}
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(40, 0)

	text := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here"
	chunks := s.Split(text)

	for _, chunk := range chunks {
		if strings.Contains(chunk, "\n\n") {
			t.Errorf("chunk spans paragraph break despite fitting per paragraph: %q", chunk)
		}
	}
	if len(chunks) != 3 {
		t.Errorf("got %d chunks: %v, want one per paragraph", len(chunks), chunks)
	}
}

func TestSplit_ContentPreserved(t *testing.T) {
	// With overlap, every word of the source must survive into some chunk.
	var words []string
	for i := 0; i < 300; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	text := strings.Join(words, " ")

	s := NewSplitter(120, 30)
	joined := strings.Join(s.Split(text), " ")

	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Fatalf("word %q lost during chunking", w)
		}
	}
}

func TestSplit_OverlapCarriedBetweenChunks(t *testing.T) {
	// Character fallback: no separators, so windows advance by size-overlap.
	s := NewSplitter(100, 20)
	text := strings.Repeat("abcdefghij", 50)

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1][len(chunks[i-1])-20:]
		if !strings.HasPrefix(chunks[i], prevTail) {
			t.Errorf("chunk %d does not start with previous tail: %q vs %q", i, prevTail, chunks[i][:20])
		}
	}
}

func TestGenerateID(t *testing.T) {
	a := GenerateID("identical content", "source", 0)
	b := GenerateID("identical content", "source", 0)
	if a != b {
		t.Errorf("same inputs produced different ids: %q vs %q", a, b)
	}

	if GenerateID("identical content", "source", 1) == a {
		t.Error("changing index did not change the id")
	}
	if GenerateID("different content", "source", 0) == a {
		t.Error("changing content did not change the id")
	}
	if GenerateID("identical content", "other", 0) == a {
		t.Error("changing source did not change the id")
	}

	if !strings.HasPrefix(a, "source_") {
		t.Errorf("id %q missing source prefix", a)
	}
	parts := strings.Split(a, "_")
	if len(parts) != 3 || len(parts[1]) != 12 {
		t.Errorf("id %q not in source_hash12_index form", a)
	}
}

func TestProcess(t *testing.T) {
	s := NewSplitter(100, 20)
	docs := []Document{
		{
			Content:  strings.Repeat("alpha beta gamma delta ", 20),
			Source:   "confluence",
			Metadata: map[string]any{"title": "Runbook", "url": "https://example.com/p/1"},
		},
		{Content: "   ", Source: "confluence"}, // skipped
		{Content: "tiny document", Source: "github"},
	}

	texts, metadatas, ids := s.Process(docs)

	if len(texts) != len(metadatas) || len(texts) != len(ids) {
		t.Fatalf("unequal lengths: %d texts, %d metadatas, %d ids", len(texts), len(metadatas), len(ids))
	}
	if len(texts) < 2 {
		t.Fatalf("expected chunks from both non-empty documents, got %d", len(texts))
	}

	// First document's chunks carry its metadata plus chunking fields,
	// with contiguous zero-based indexes.
	firstDocChunks := 0
	for i, md := range metadatas {
		if md["source"] == "confluence" {
			if md["title"] != "Runbook" {
				t.Errorf("chunk %d lost parent metadata: %v", i, md)
			}
			if md["chunk_index"] != firstDocChunks {
				t.Errorf("chunk_index = %v, want %d", md["chunk_index"], firstDocChunks)
			}
			firstDocChunks++
		}
	}
	for _, md := range metadatas {
		if md["source"] == "confluence" && md["total_chunks"] != firstDocChunks {
			t.Errorf("total_chunks = %v, want %d", md["total_chunks"], firstDocChunks)
		}
	}

	// Last chunk belongs to the github document.
	last := len(texts) - 1
	if texts[last] != "tiny document" || metadatas[last]["source"] != "github" {
		t.Errorf("unexpected last chunk: %q %v", texts[last], metadatas[last])
	}
	if metadatas[last]["chunk_index"] != 0 || metadatas[last]["total_chunks"] != 1 {
		t.Errorf("single-chunk document metadata wrong: %v", metadatas[last])
	}
}

func TestProcess_Idempotent(t *testing.T) {
	s := NewSplitter(100, 20)
	docs := []Document{{Content: strings.Repeat("repeatable content ", 30), Source: "test"}}

	_, _, ids1 := s.Process(docs)
	_, _, ids2 := s.Process(docs)

	if len(ids1) != len(ids2) {
		t.Fatalf("chunk counts differ: %d vs %d", len(ids1), len(ids2))
	}
	for i := range ids1 {
		if ids1[i] != ids2[i] {
			t.Errorf("id %d differs: %q vs %q", i, ids1[i], ids2[i])
		}
	}
}

func TestProcess_DefaultsUnknownSource(t *testing.T) {
	s := NewSplitter(100, 20)

	_, metadatas, ids := s.Process([]Document{{Content: "no source set"}})
	if len(ids) != 1 {
		t.Fatalf("got %d chunks, want 1", len(ids))
	}
	if metadatas[0]["source"] != "unknown" {
		t.Errorf("source = %v, want unknown", metadatas[0]["source"])
	}
	if !strings.HasPrefix(ids[0], "unknown_") {
		t.Errorf("id = %q, want unknown_ prefix", ids[0])
	}
}

func TestNewSplitter_GuardsInvalidConfig(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.size != DefaultChunkSize {
		t.Errorf("size = %d, want default %d", s.size, DefaultChunkSize)
	}
	if s.overlap != DefaultChunkSize/4 {
		t.Errorf("overlap = %d, want %d", s.overlap, DefaultChunkSize/4)
	}

	s = NewSplitter(200, 200)
	if s.overlap != 50 {
		t.Errorf("overlap = %d, want size/4 when overlap >= size", s.overlap)
	}
}
