package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nhle/mailindex/internal/model"
)

// fakeEmbedder returns canned vectors by text, counting calls. Unknown
// texts embed to the zero vector.
type fakeEmbedder struct {
	vectors  map[string][]float32
	calls    int
	failures int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("embedding service unavailable")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := f.vectors[t]
		if !ok {
			vec = make([]float32, 8)
		}
		out[i] = vec
	}
	return out, nil
}

// labelVectors gives each category its own one-hot dimension.
func labelVectors() map[string][]float32 {
	m := make(map[string][]float32)
	for i, c := range model.Categories {
		vec := make([]float32, 8)
		vec[i] = 1
		m[string(c)] = vec
	}
	return m
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyPicksNearestLabel(t *testing.T) {
	vectors := labelVectors()
	// The body points at the "Meeting Booked" dimension.
	body := "Let's book a call next week"
	vectors[body] = []float32{0.1, 0.9, 0, 0, 0, 0, 0, 0}

	c := New(&fakeEmbedder{vectors: vectors}, testLogger())

	got := c.Classify(context.Background(), body)
	if got != model.CategoryMeetingBooked {
		t.Errorf("Classify = %q, want %q", got, model.CategoryMeetingBooked)
	}
}

func TestClassifyTieResolvesToFirstCategory(t *testing.T) {
	vectors := labelVectors()
	body := "ambiguous"
	vectors[body] = []float32{1, 1, 1, 1, 1, 0, 0, 0}

	c := New(&fakeEmbedder{vectors: vectors}, testLogger())

	got := c.Classify(context.Background(), body)
	if got != model.Categories[0] {
		t.Errorf("Classify = %q, want first category %q", got, model.Categories[0])
	}
}

func TestClassifyFallsBackOnEmbedderError(t *testing.T) {
	embedder := &fakeEmbedder{vectors: labelVectors(), failures: 10}
	c := New(embedder, testLogger())

	got := c.Classify(context.Background(), "anything")
	if got != model.CategoryUnclassified {
		t.Errorf("Classify = %q, want %q", got, model.CategoryUnclassified)
	}
}

func TestClassifyFallsBackOnBodyEmbedError(t *testing.T) {
	// Labels load on the first call, the body embed then fails.
	embedder := &fakeEmbedder{vectors: labelVectors()}
	c := New(embedder, testLogger())

	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	embedder.failures = 1

	got := c.Classify(context.Background(), "anything")
	if got != model.CategoryUnclassified {
		t.Errorf("Classify = %q, want %q", got, model.CategoryUnclassified)
	}
}

func TestLabelEmbeddingsComputedOnce(t *testing.T) {
	vectors := labelVectors()
	vectors["one"] = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	vectors["two"] = []float32{0, 1, 0, 0, 0, 0, 0, 0}

	embedder := &fakeEmbedder{vectors: vectors}
	c := New(embedder, testLogger())

	c.Classify(context.Background(), "one")
	c.Classify(context.Background(), "two")

	// One label batch plus one call per body.
	if embedder.calls != 3 {
		t.Errorf("embedder calls = %d, want 3", embedder.calls)
	}
}

func TestWarmFailureRetriedLazily(t *testing.T) {
	vectors := labelVectors()
	body := "spam spam spam"
	vectors[body] = []float32{0, 0, 0, 0.9, 0, 0, 0, 0}

	embedder := &fakeEmbedder{vectors: vectors, failures: 1}
	c := New(embedder, testLogger())

	if err := c.Warm(context.Background()); err == nil {
		t.Fatal("Warm should fail while the embedder is down")
	}

	got := c.Classify(context.Background(), body)
	if got != model.CategorySpam {
		t.Errorf("Classify after failed Warm = %q, want %q", got, model.CategorySpam)
	}
}

func TestDot(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"aligned", []float32{1, 2}, []float32{3, 4}, 11},
		{"mismatched lengths", []float32{1, 2, 3}, []float32{2}, 2},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dot(tt.a, tt.b); got != tt.want {
				t.Errorf("dot = %v, want %v", got, tt.want)
			}
		})
	}
}
