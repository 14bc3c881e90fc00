// Package classify assigns a category label to email bodies by
// embedding the body and the fixed label set into the same vector
// space and picking the label with the highest inner-product score.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nhle/mailindex/internal/model"
)

// Classifier labels email bodies. Label embeddings are computed once
// (lazily on first use, or eagerly via Warm) and reused for every
// subsequent call.
type Classifier struct {
	embedder Embedder
	logger   *slog.Logger

	mu         sync.Mutex
	labelVecs  [][]float32
	labelTexts []string
}

// New creates a classifier over the given embedder.
func New(embedder Embedder, logger *slog.Logger) *Classifier {
	labels := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		labels[i] = string(c)
	}
	return &Classifier{
		embedder:   embedder,
		logger:     logger.With("component", "classifier"),
		labelTexts: labels,
	}
}

// Warm preloads the category label embeddings so the first message does
// not pay the model-load cost. Failure is not fatal; loading is retried
// lazily on the next Classify call.
func (c *Classifier) Warm(ctx context.Context) error {
	_, err := c.labelEmbeddings(ctx)
	return err
}

// Classify returns the category whose label embedding scores highest
// against the body embedding. Ties resolve to the first maximum in the
// fixed category order. Any embedding failure degrades to
// CategoryUnclassified; the error is logged, never returned, so a
// model outage cannot block indexing.
func (c *Classifier) Classify(ctx context.Context, body string) model.Category {
	labels, err := c.labelEmbeddings(ctx)
	if err != nil {
		c.logger.Warn("label embeddings unavailable, falling back", "error", err)
		return model.CategoryUnclassified
	}

	vecs, err := c.embedder.Embed(ctx, []string{body})
	if err != nil || len(vecs) != 1 {
		c.logger.Warn("body embedding failed, falling back", "error", err)
		return model.CategoryUnclassified
	}

	best := 0
	bestScore := dot(labels[0], vecs[0])
	for i := 1; i < len(labels); i++ {
		if score := dot(labels[i], vecs[0]); score > bestScore {
			best = i
			bestScore = score
		}
	}

	return model.Categories[best]
}

// labelEmbeddings returns the cached label vectors, computing them on
// first use. A failed attempt leaves the cache empty so the next call
// retries.
func (c *Classifier) labelEmbeddings(ctx context.Context) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.labelVecs != nil {
		return c.labelVecs, nil
	}

	vecs, err := c.embedder.Embed(ctx, c.labelTexts)
	if err != nil {
		return nil, fmt.Errorf("embedding category labels: %w", err)
	}
	if len(vecs) != len(c.labelTexts) {
		return nil, fmt.Errorf(
			"expected %d label embeddings, got %d", len(c.labelTexts), len(vecs),
		)
	}

	c.labelVecs = vecs
	c.logger.Info("category label embeddings loaded", "labels", len(vecs))
	return c.labelVecs, nil
}

// dot computes the inner product of two vectors. Mismatched lengths
// score over the shorter prefix.
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
