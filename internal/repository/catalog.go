package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ibralab/anaterra/internal/entities"
)

type CatalogRepository struct {
	db *pgxpool.Pool
}

func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Search returns the catalog items nearest to the query embedding,
// ordered by ascending distance, each annotated with its distance.
func (r *CatalogRepository) Search(ctx context.Context, embedding []float32, limit int) ([]entities.ScoredItem, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx, `
		SELECT a.id,
		       a.name,
		       a.description,
		       COALESCE(a.context, ''),
		       a.price,
		       a.unit,
		       a.type,
		       l.name AS lab,
		       a.embedding <-> $1 AS distance
		FROM analyses a
		JOIN labs l ON l.id = a.lab_id
		WHERE a.embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT $2
	`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	var items []entities.ScoredItem
	for rows.Next() {
		var it entities.ScoredItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Context, &it.Price, &it.Unit, &it.Type, &it.Lab, &it.Distance); err != nil {
			return nil, fmt.Errorf("scan catalog result: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns the whole catalog for the admin API.
func (r *CatalogRepository) List(ctx context.Context) ([]entities.CatalogItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.name, a.description, COALESCE(a.context, ''), a.price, a.unit, a.type, l.name AS lab
		FROM analyses a
		JOIN labs l ON l.id = a.lab_id
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var items []entities.CatalogItem
	for rows.Next() {
		var it entities.CatalogItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Context, &it.Price, &it.Unit, &it.Type, &it.Lab); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Insert creates an analysis with its embedding. The lab is referenced
// by name and must already exist.
func (r *CatalogRepository) Insert(ctx context.Context, item entities.CatalogItem, embedding []float32) (int64, error) {
	var labID int
	err := r.db.QueryRow(ctx, `SELECT id FROM labs WHERE name ILIKE $1`, item.Lab).Scan(&labID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lab %q not found", item.Lab)
	}
	if err != nil {
		return 0, fmt.Errorf("find lab %q: %w", item.Lab, err)
	}

	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO analyses (name, description, price, unit, type, lab_id, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, item.Name, item.Description, item.Price, item.Unit, item.Type, labID, pgvector.NewVector(embedding)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert analysis %q: %w", item.Name, err)
	}
	return id, nil
}

// Delete removes an analysis from the catalog.
func (r *CatalogRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete analysis %d: %w", id, err)
	}
	return nil
}

// SetContext stores the generated customer-facing explanation.
func (r *CatalogRepository) SetContext(ctx context.Context, id int64, text string) error {
	_, err := r.db.Exec(ctx, `UPDATE analyses SET context = $1 WHERE id = $2`, text, id)
	if err != nil {
		return fmt.Errorf("set context for analysis %d: %w", id, err)
	}
	return nil
}

// SetEmbedding replaces an analysis' embedding vector.
func (r *CatalogRepository) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := r.db.Exec(ctx, `UPDATE analyses SET embedding = $1 WHERE id = $2`, pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("set embedding for analysis %d: %w", id, err)
	}
	return nil
}
