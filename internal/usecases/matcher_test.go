package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/log"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestCatalogMatcherBestMatch(t *testing.T) {
	t.Parallel()

	t.Run("returns the nearest item inside the cutoff", func(t *testing.T) {
		t.Parallel()
		store := &fakeSearcher{items: []entities.ScoredItem{soilItem(50, 0.3)}}
		m := NewCatalogMatcher(fixedEmbedder{}, store, 0.98, log.NewNop())

		got, err := m.BestMatch(context.Background(), "análise de solo")

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Análise de Solo Completa", got.Name)
	})

	t.Run("nil when the nearest item is too far", func(t *testing.T) {
		t.Parallel()
		store := &fakeSearcher{items: []entities.ScoredItem{soilItem(50, 1.2)}}
		m := NewCatalogMatcher(fixedEmbedder{}, store, 0.98, log.NewNop())

		got, err := m.BestMatch(context.Background(), "análise de mel")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("nil on an empty catalog", func(t *testing.T) {
		t.Parallel()
		m := NewCatalogMatcher(fixedEmbedder{}, &fakeSearcher{}, 0.98, log.NewNop())

		got, err := m.BestMatch(context.Background(), "qualquer coisa")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("embedding failure surfaces as an error", func(t *testing.T) {
		t.Parallel()
		m := NewCatalogMatcher(failingEmbedder{}, &fakeSearcher{}, 0.98, log.NewNop())

		_, err := m.BestMatch(context.Background(), "análise de solo")

		assert.Error(t, err)
	})
}

func TestCatalogMatcherTopRankedKeepsDistantItems(t *testing.T) {
	t.Parallel()
	store := &fakeSearcher{items: []entities.ScoredItem{soilItem(50, 1.2)}}
	m := NewCatalogMatcher(fixedEmbedder{}, store, 0.98, log.NewNop())

	items, err := m.TopRanked(context.Background(), "pergunta", 3)

	require.NoError(t, err)
	require.Len(t, items, 1, "no cutoff applies here; callers judge relevance")
	assert.Equal(t, 1.2, items[0].Distance)
}
