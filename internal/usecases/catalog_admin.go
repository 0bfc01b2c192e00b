package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/interfaces"
)

// CatalogStore is the write side of the catalog, used only by the admin
// operations. The conversation engine reads the catalog exclusively
// through similarity search.
type CatalogStore interface {
	List(ctx context.Context) ([]entities.CatalogItem, error)
	Insert(ctx context.Context, item entities.CatalogItem, embedding []float32) (int64, error)
	Delete(ctx context.Context, id int64) error
	SetContext(ctx context.Context, id int64, text string) error
	SetEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// CatalogAdmin maintains the analysis catalog: CRUD plus the two batch
// maintenance jobs (context generation, embedding recompute).
type CatalogAdmin struct {
	store    CatalogStore
	embedder interfaces.Embedder
	llm      interfaces.LanguageModel
	logger   *slog.Logger
}

func NewCatalogAdmin(store CatalogStore, embedder interfaces.Embedder, llm interfaces.LanguageModel, logger *slog.Logger) *CatalogAdmin {
	return &CatalogAdmin{store: store, embedder: embedder, llm: llm, logger: logger}
}

func (a *CatalogAdmin) List(ctx context.Context) ([]entities.CatalogItem, error) {
	return a.store.List(ctx)
}

// Save embeds the item and stores it. The embedding covers matrix, lab,
// name and description so searches work on any of them.
func (a *CatalogAdmin) Save(ctx context.Context, item entities.CatalogItem) (int64, error) {
	vec, err := a.embedder.Embed(ctx, embeddingText(item))
	if err != nil {
		return 0, fmt.Errorf("embed analysis %q: %w", item.Name, err)
	}
	id, err := a.store.Insert(ctx, item, vec)
	if err != nil {
		return 0, err
	}
	a.logger.Info("analysis saved", "id", id, "name", item.Name)
	return id, nil
}

// SaveBatch stores every item, stopping at the first failure and
// reporting how many made it in.
func (a *CatalogAdmin) SaveBatch(ctx context.Context, items []entities.CatalogItem) (int, error) {
	for i, item := range items {
		if _, err := a.Save(ctx, item); err != nil {
			return i, fmt.Errorf("item %d (%q): %w", i, item.Name, err)
		}
	}
	return len(items), nil
}

func (a *CatalogAdmin) Delete(ctx context.Context, id int64) error {
	return a.store.Delete(ctx, id)
}

// GenerateContexts writes a customer-facing explanation for every
// analysis that does not have one yet. Returns the number updated.
func (a *CatalogAdmin) GenerateContexts(ctx context.Context) (int, error) {
	items, err := a.store.List(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, item := range items {
		if strings.TrimSpace(item.Context) != "" {
			continue
		}
		prompt := fmt.Sprintf(`Escreva uma explicação curta e acessível, em português, para um cliente leigo,
sobre a análise laboratorial abaixo: para que serve, quando é indicada e que tipo de decisão ela apoia.
Não invente resultados nem valores. Responda apenas com o texto da explicação.

Análise: %s
Laboratório: %s
Tipo de amostra: %s
Descrição técnica: %s`, item.Name, item.Lab, item.Type, item.Description)

		text := a.llm.Complete(ctx, "Você é Ana Terra, técnica de laboratório agrícola.", prompt, "")
		if strings.TrimSpace(text) == "" {
			a.logger.Warn("context generation returned nothing", "id", item.ID, "name", item.Name)
			continue
		}
		if err := a.store.SetContext(ctx, item.ID, text); err != nil {
			return updated, fmt.Errorf("store context for analysis %d: %w", item.ID, err)
		}
		updated++
	}
	a.logger.Info("contexts generated", "updated", updated, "total", len(items))
	return updated, nil
}

// RecomputeEmbeddings re-embeds the whole catalog. Run after switching
// embedding models; the distance thresholds usually need retuning too.
func (a *CatalogAdmin) RecomputeEmbeddings(ctx context.Context) (int, error) {
	items, err := a.store.List(ctx)
	if err != nil {
		return 0, err
	}

	for i, item := range items {
		vec, err := a.embedder.Embed(ctx, embeddingText(item))
		if err != nil {
			return i, fmt.Errorf("embed analysis %d (%q): %w", item.ID, item.Name, err)
		}
		if err := a.store.SetEmbedding(ctx, item.ID, vec); err != nil {
			return i, fmt.Errorf("store embedding for analysis %d: %w", item.ID, err)
		}
	}
	a.logger.Info("embeddings recomputed", "count", len(items))
	return len(items), nil
}

func embeddingText(item entities.CatalogItem) string {
	parts := []string{item.Type, item.Lab, item.Name, item.Description}
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
