package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/log"
)

type memCatalog struct {
	items      map[int64]entities.CatalogItem
	embeddings map[int64][]float32
	nextID     int64
}

func newMemCatalog() *memCatalog {
	return &memCatalog{items: map[int64]entities.CatalogItem{}, embeddings: map[int64][]float32{}}
}

func (c *memCatalog) List(context.Context) ([]entities.CatalogItem, error) {
	var out []entities.CatalogItem
	for id := int64(1); id <= c.nextID; id++ {
		if item, ok := c.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *memCatalog) Insert(_ context.Context, item entities.CatalogItem, embedding []float32) (int64, error) {
	c.nextID++
	item.ID = c.nextID
	c.items[item.ID] = item
	c.embeddings[item.ID] = embedding
	return item.ID, nil
}

func (c *memCatalog) Delete(_ context.Context, id int64) error {
	delete(c.items, id)
	delete(c.embeddings, id)
	return nil
}

func (c *memCatalog) SetContext(_ context.Context, id int64, text string) error {
	item := c.items[id]
	item.Context = text
	c.items[id] = item
	return nil
}

func (c *memCatalog) SetEmbedding(_ context.Context, id int64, embedding []float32) error {
	c.embeddings[id] = embedding
	return nil
}

func TestCatalogAdminSave(t *testing.T) {
	t.Parallel()
	store := newMemCatalog()
	admin := NewCatalogAdmin(store, fixedEmbedder{}, cannedLLM{}, log.NewNop())

	id, err := admin.Save(context.Background(), entities.CatalogItem{
		Name: "Análise de Solo Completa", Description: "Macro e micronutrientes",
		Price: 50, Unit: "amostra", Type: "solo", Lab: "IBRA",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.NotEmpty(t, store.embeddings[id], "saving computes the embedding")
}

func TestCatalogAdminSaveBatch(t *testing.T) {
	t.Parallel()
	store := newMemCatalog()
	admin := NewCatalogAdmin(store, fixedEmbedder{}, cannedLLM{}, log.NewNop())

	n, err := admin.SaveBatch(context.Background(), []entities.CatalogItem{
		{Name: "A", Price: 10, Unit: "amostra", Lab: "IBRA"},
		{Name: "B", Price: 20, Unit: "amostra", Lab: "IBRA"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.items, 2)
}

func TestCatalogAdminGenerateContexts(t *testing.T) {
	t.Parallel()

	t.Run("fills only missing contexts", func(t *testing.T) {
		t.Parallel()
		store := newMemCatalog()
		_, _ = store.Insert(context.Background(), entities.CatalogItem{Name: "A", Context: "já explicada"}, nil)
		_, _ = store.Insert(context.Background(), entities.CatalogItem{Name: "B"}, nil)
		admin := NewCatalogAdmin(store, fixedEmbedder{}, cannedLLM{out: "explicação gerada"}, log.NewNop())

		updated, err := admin.GenerateContexts(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, updated)
		assert.Equal(t, "já explicada", store.items[1].Context)
		assert.Equal(t, "explicação gerada", store.items[2].Context)
	})

	t.Run("empty model output leaves the row alone", func(t *testing.T) {
		t.Parallel()
		store := newMemCatalog()
		_, _ = store.Insert(context.Background(), entities.CatalogItem{Name: "A"}, nil)
		admin := NewCatalogAdmin(store, fixedEmbedder{}, cannedLLM{out: "   "}, log.NewNop())

		updated, err := admin.GenerateContexts(context.Background())

		require.NoError(t, err)
		assert.Zero(t, updated)
		assert.Empty(t, store.items[1].Context)
	})
}

func TestCatalogAdminRecomputeEmbeddings(t *testing.T) {
	t.Parallel()
	store := newMemCatalog()
	_, _ = store.Insert(context.Background(), entities.CatalogItem{Name: "A"}, []float32{9})
	_, _ = store.Insert(context.Background(), entities.CatalogItem{Name: "B"}, []float32{9})
	admin := NewCatalogAdmin(store, fixedEmbedder{}, cannedLLM{}, log.NewNop())

	n, err := admin.RecomputeEmbeddings(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.embeddings[1])
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.embeddings[2])
}
