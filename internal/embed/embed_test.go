package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeProvider records batch sizes and returns deterministic vectors
// derived from the text content.
type fakeProvider struct {
	batches [][]string
	failOn  int // fail the nth call (1-based), 0 = never
	calls   int
	short   bool // return one fewer vector than requested
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	if f.failOn != 0 && f.calls == f.failOn {
		return nil, errors.New("upstream unavailable")
	}

	n := len(texts)
	if f.short {
		n--
	}
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = deterministicVector(texts[i])
	}
	return vectors, nil
}

func deterministicVector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 4)
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[i*4 : i*4+4])
		vec[i] = float32(bits%1000) / 1000
	}
	return vec
}

func newTestClient(t *testing.T, p Provider, opts ...Option) *Client {
	t.Helper()
	// Unthrottled: tests must not sleep on the limiter.
	opts = append([]Option{WithRequestsPerMinute(60_000_000)}, opts...)
	c, err := New(p, nil, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew_RequiresProvider(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New(nil) succeeded, want error")
	}
}

func TestEmbedTexts_Empty(t *testing.T) {
	c := newTestClient(t, &fakeProvider{})

	got, err := c.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts(nil) error: %v", err)
	}
	if got != nil {
		t.Errorf("EmbedTexts(nil) = %v, want nil", got)
	}
}

func TestEmbedTexts_SplitsIntoBatches(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p, WithBatchSize(10))

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := c.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts() error: %v", err)
	}
	if len(vectors) != 25 {
		t.Fatalf("got %d vectors, want 25", len(vectors))
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}
	wantSizes := []int{10, 10, 5}
	for i, batch := range p.batches {
		if len(batch) != wantSizes[i] {
			t.Errorf("batch %d has %d texts, want %d", i, len(batch), wantSizes[i])
		}
	}

	// Order preserved across batch boundaries.
	for i, text := range texts {
		want := deterministicVector(text)
		for j := range want {
			if vectors[i][j] != want[j] {
				t.Fatalf("vector %d does not match its text", i)
			}
		}
	}
}

func TestEmbedTexts_FailingBatchFailsAll(t *testing.T) {
	p := &fakeProvider{failOn: 2}
	c := newTestClient(t, p, WithBatchSize(10))

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := c.EmbedTexts(context.Background(), texts)
	if err == nil {
		t.Fatal("EmbedTexts() succeeded, want error")
	}
	if vectors != nil {
		t.Errorf("got partial vectors on error: %d", len(vectors))
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("error %v is not a BatchError", err)
	}
	if batchErr.Start != 10 || batchErr.End != 20 {
		t.Errorf("BatchError range [%d:%d], want [10:20]", batchErr.Start, batchErr.End)
	}
}

func TestEmbedTexts_CountMismatch(t *testing.T) {
	c := newTestClient(t, &fakeProvider{short: true})

	_, err := c.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("EmbedTexts() succeeded despite short response")
	}
}

func TestEmbedTexts_ContextCancelled(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.EmbedTexts(ctx, []string{"a"}); err == nil {
		t.Error("EmbedTexts() succeeded with cancelled context")
	}
}

func TestEmbedQuery(t *testing.T) {
	c := newTestClient(t, &fakeProvider{})

	vec, err := c.EmbedQuery(context.Background(), "what is the deploy process?")
	if err != nil {
		t.Fatalf("EmbedQuery() error: %v", err)
	}
	if len(vec) == 0 {
		t.Error("EmbedQuery() returned empty vector")
	}

	if _, err := c.EmbedQuery(context.Background(), ""); err == nil {
		t.Error("EmbedQuery(\"\") succeeded, want error")
	}
}

func TestWithTimeout(t *testing.T) {
	c := newTestClient(t, &fakeProvider{}, WithTimeout(5*time.Second))
	if c.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.timeout)
	}
}
