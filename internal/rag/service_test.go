package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/duvidaki/duvidaki/internal/chunk"
	"github.com/duvidaki/duvidaki/internal/log"
	"github.com/duvidaki/duvidaki/internal/store"
	"github.com/duvidaki/duvidaki/internal/testutil"
)

// fakeStore is an in-memory Store that returns scripted search results.
type fakeStore struct {
	results   []store.Result
	searchErr error
	addErr    error

	added       int
	searchCalls int
	resetCalls  int
	deleted     map[string]int64
	count       int
	bySource    map[string]int
}

func (f *fakeStore) Add(_ context.Context, texts []string, _ []map[string]any, _ []string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added += len(texts)
	f.count += len(texts)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ string, _ int) ([]store.Result, error) {
	f.searchCalls++
	return f.results, f.searchErr
}

func (f *fakeStore) DeleteBySource(_ context.Context, source string) (int64, error) {
	return f.deleted[source], nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) { return f.count, nil }

func (f *fakeStore) CountBySource(_ context.Context) (map[string]int, error) {
	return f.bySource, nil
}

func (f *fakeStore) Reset(_ context.Context) error {
	f.resetCalls++
	f.count = 0
	return nil
}

func newTestService(t *testing.T, st Store, gen Generator, opts ...Option) *Service {
	t.Helper()
	s, err := New(st, gen, log.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, &testutil.MockGenerator{}, nil); err == nil {
		t.Error("New() with nil store succeeded")
	}
	if _, err := New(&fakeStore{}, nil, nil); err == nil {
		t.Error("New() with nil generator succeeded")
	}
}

func TestQuery_NoResultsSkipsGeneration(t *testing.T) {
	gen := &testutil.MockGenerator{}
	s := newTestService(t, &fakeStore{}, gen)

	got := s.Query(context.Background(), "where are the runbooks?")
	if got != NoResultsMessage {
		t.Errorf("Query() = %q, want no-results message", got)
	}
	if gen.Calls() != 0 {
		t.Errorf("generator called %d times on empty search, want 0", gen.Calls())
	}
}

func TestQuery_SearchFailureIsNoResults(t *testing.T) {
	gen := &testutil.MockGenerator{}
	st := &fakeStore{searchErr: errors.New("connection refused")}
	s := newTestService(t, st, gen)

	got := s.Query(context.Background(), "where are the runbooks?")
	if got != NoResultsMessage {
		t.Errorf("Query() = %q, want no-results message", got)
	}
	if gen.Calls() != 0 {
		t.Errorf("generator called %d times after failed search, want 0", gen.Calls())
	}
}

func TestQuery_ReturnsGeneratedAnswer(t *testing.T) {
	gen := &testutil.MockGenerator{Answer: "MOCK_ANSWER"}
	st := &fakeStore{results: []store.Result{
		{
			ID:         "test_abc_0",
			Document:   "Hello world, this is a test paragraph with enough length to form one chunk.",
			Metadata:   map[string]any{"source": "test", "title": "Title"},
			Similarity: 0.97,
		},
	}}
	s := newTestService(t, st, gen)

	got := s.Query(context.Background(), "Hello")
	if got != "MOCK_ANSWER" {
		t.Errorf("Query() = %q, want MOCK_ANSWER", got)
	}

	prompt, err := gen.LastPrompt()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "[Source 1 - TEST]") {
		t.Errorf("prompt missing context block header:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User question: Hello") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}

	system, err := gen.LastSystem()
	if err != nil {
		t.Fatal(err)
	}
	if system != SystemPrompt {
		t.Error("generation did not use the fixed system prompt")
	}
}

func TestQuery_ValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string // exact message, or "" to assert a validation message
	}{
		{name: "empty", question: "   ", want: ErrorMessage},
		{name: "blocked", question: "DROP TABLE users"},
		{name: "too long", question: strings.Repeat("a", 3000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &testutil.MockGenerator{}
			st := &fakeStore{}
			s := newTestService(t, st, gen)

			got := s.Query(context.Background(), tt.question)
			if tt.want != "" && got != tt.want {
				t.Errorf("Query() = %q, want %q", got, tt.want)
			}
			if tt.want == "" && (got == "" || got == NoResultsMessage) {
				t.Errorf("Query() = %q, want a validation message", got)
			}
			if st.searchCalls != 0 {
				t.Errorf("search called %d times for rejected query, want 0", st.searchCalls)
			}
			if gen.Calls() != 0 {
				t.Errorf("generator called %d times for rejected query, want 0", gen.Calls())
			}
		})
	}
}

func TestQuery_GenerationFailureIsGenericError(t *testing.T) {
	gen := &testutil.MockGenerator{Err: errors.New("model exploded: secret internals")}
	st := &fakeStore{results: []store.Result{
		{Document: "doc", Metadata: map[string]any{"source": "test"}},
	}}
	s := newTestService(t, st, gen)

	got := s.Query(context.Background(), "anything")
	if got != ErrorMessage {
		t.Errorf("Query() = %q, want generic error message", got)
	}
	if strings.Contains(got, "secret internals") {
		t.Error("internal error detail leaked to the user")
	}
}

func TestQuery_RetriesTransientGenerationErrors(t *testing.T) {
	// MockGenerator fails every call; a transient error message keeps
	// the retry loop going until the budget runs out.
	gen := &testutil.MockGenerator{Err: errors.New("429 rate limit exceeded")}
	st := &fakeStore{results: []store.Result{
		{Document: "doc", Metadata: map[string]any{"source": "test"}},
	}}
	s := newTestService(t, st, gen, WithRetryConfig(RetryConfig{
		MaxRetries:      2,
		InitialInterval: 1, // nanoseconds; keep the test fast
		MaxInterval:     1,
	}))

	got := s.Query(context.Background(), "anything")
	if got != ErrorMessage {
		t.Errorf("Query() = %q, want generic error message", got)
	}
	if gen.Calls() != 3 {
		t.Errorf("generator called %d times, want 3 (1 + 2 retries)", gen.Calls())
	}
}

func TestIndex(t *testing.T) {
	st := &fakeStore{}
	s := newTestService(t, st, &testutil.MockGenerator{},
		WithSplitter(chunk.NewSplitter(2000, 200)))

	docs := []chunk.Document{{
		Content:  "# Title\n\nHello world, this is a test paragraph with enough length to form one chunk.",
		Source:   "test",
		Metadata: map[string]any{"title": "Title"},
	}}

	n, err := s.Index(context.Background(), docs)
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Index() = %d chunks, want 1", n)
	}
	if st.added != 1 {
		t.Errorf("store received %d chunks, want 1", st.added)
	}
}

func TestIndex_EmptyInput(t *testing.T) {
	st := &fakeStore{}
	s := newTestService(t, st, &testutil.MockGenerator{})

	if _, err := s.Index(context.Background(), nil); err == nil {
		t.Error("Index(nil) succeeded, want error")
	}

	if _, err := s.Index(context.Background(), []chunk.Document{{Content: "   "}}); err == nil {
		t.Error("Index(blank doc) succeeded, want error")
	}
	if st.added != 0 {
		t.Errorf("store received %d chunks, want 0", st.added)
	}
}

func TestIndex_StoreFailure(t *testing.T) {
	st := &fakeStore{addErr: errors.New("disk full")}
	s := newTestService(t, st, &testutil.MockGenerator{})

	if _, err := s.Index(context.Background(), []chunk.Document{
		{Content: "some document content", Source: "test"},
	}); err == nil {
		t.Error("Index() succeeded despite store failure")
	}
}

func TestStats(t *testing.T) {
	st := &fakeStore{count: 7, bySource: map[string]int{"confluence": 4, "github": 3}}
	s := newTestService(t, st, &testutil.MockGenerator{})

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalChunks != 7 {
		t.Errorf("TotalChunks = %d, want 7", stats.TotalChunks)
	}
	if stats.Sources["confluence"] != 4 || stats.Sources["github"] != 3 {
		t.Errorf("Sources = %v", stats.Sources)
	}
}

func TestPurgeSourceAndReset(t *testing.T) {
	st := &fakeStore{deleted: map[string]int64{"github": 3}}
	s := newTestService(t, st, &testutil.MockGenerator{})

	deleted, err := s.PurgeSource(context.Background(), "github")
	if err != nil {
		t.Fatalf("PurgeSource() error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("PurgeSource() = %d, want 3", deleted)
	}

	if err := s.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if st.resetCalls != 1 {
		t.Errorf("store Reset called %d times, want 1", st.resetCalls)
	}
}
