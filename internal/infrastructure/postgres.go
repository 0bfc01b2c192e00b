package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Catalog embeddings are pgvector columns; register the codec on
	// every new connection.
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}

	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	// Catalog search relies on the pgvector extension.
	if _, err := p.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector;`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS labs (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create labs table: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			context TEXT,
			price NUMERIC(12, 2) NOT NULL,
			unit VARCHAR(50) NOT NULL DEFAULT 'amostra',
			type VARCHAR(50) NOT NULL DEFAULT 'fixo',
			lab_id INT NOT NULL REFERENCES labs(id),
			embedding vector(1536),
			created_at TIMESTAMPTZ DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create analyses table: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_session (
			session_id VARCHAR(255) PRIMARY KEY,
			channel VARCHAR(20) NOT NULL,
			customer VARCHAR(255),
			cpf VARCHAR(11),
			context JSONB,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create chat_session table: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_cart_item (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			analysis_id BIGINT,
			name VARCHAR(255) NOT NULL,
			unit_price NUMERIC(12, 2) NOT NULL,
			quantity INT NOT NULL CHECK (quantity >= 1),
			created_at TIMESTAMPTZ DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create chat_cart_item table: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_escalation (
			id BIGSERIAL PRIMARY KEY,
			session_key VARCHAR(255) NOT NULL,
			cpf VARCHAR(11),
			channel VARCHAR(20) NOT NULL,
			reason VARCHAR(255),
			last_message TEXT NOT NULL,
			resolved BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create chat_escalation table: %w", err)
	}

	if _, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_log (
			id BIGSERIAL PRIMARY KEY,
			session_key VARCHAR(255) NOT NULL,
			cpf VARCHAR(11),
			channel VARCHAR(20) NOT NULL,
			role VARCHAR(10) NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		);
	`); err != nil {
		return fmt.Errorf("create chat_log table: %w", err)
	}

	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
