package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/interfaces"
)

// CatalogSearcher is the similarity store the matcher needs: nearest
// catalog items for a query vector, ascending by distance.
type CatalogSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]entities.ScoredItem, error)
}

// CatalogMatcher turns free text into ranked catalog items by embedding
// the text and querying the similarity store.
type CatalogMatcher struct {
	embedder interfaces.Embedder
	store    CatalogSearcher

	// Results farther than this are not considered a match for the
	// quote flow. Empirical constant for the embedding model in use.
	maxDistance float64

	logger *slog.Logger
}

func NewCatalogMatcher(embedder interfaces.Embedder, store CatalogSearcher, maxDistance float64, logger *slog.Logger) *CatalogMatcher {
	return &CatalogMatcher{
		embedder:    embedder,
		store:       store,
		maxDistance: maxDistance,
		logger:      logger,
	}
}

// BestMatch returns the nearest catalog item for the text, or nil when
// nothing falls inside the acceptable distance.
func (m *CatalogMatcher) BestMatch(ctx context.Context, text string) (*entities.ScoredItem, error) {
	items, err := m.TopRanked(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	best := items[0]
	if best.Distance > m.maxDistance {
		m.logger.Debug("best candidate above distance cutoff",
			"analysis", best.Name, "distance", best.Distance, "cutoff", m.maxDistance)
		return nil, nil
	}
	return &best, nil
}

// TopRanked returns up to limit items ascending by distance, with no
// distance cutoff applied. Callers judge relevance themselves.
func (m *CatalogMatcher) TopRanked(ctx context.Context, text string, limit int) ([]entities.ScoredItem, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := m.store.Search(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return items, nil
}

// ListSemantic returns up to limit items for a canonical catalog phrase
// such as "análises de solo". Used by the listing flow, which wants
// breadth rather than a single confident hit.
func (m *CatalogMatcher) ListSemantic(ctx context.Context, term string, limit int) ([]entities.ScoredItem, error) {
	return m.TopRanked(ctx, term, limit)
}
