package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibralab/anaterra/internal/entities"
)

type ChatLogRepository struct {
	db *pgxpool.Pool
}

func NewChatLogRepository(db *pgxpool.Pool) *ChatLogRepository {
	return &ChatLogRepository{db: db}
}

// Append writes one audit entry. Entries are never updated or deleted.
func (r *ChatLogRepository) Append(ctx context.Context, sessionKey, cpf string, channel entities.Channel, role entities.ChatRole, message string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_log (session_key, cpf, channel, role, message)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionKey, nullable(cpf), string(channel), string(role), message)
	if err != nil {
		return fmt.Errorf("append chat log for session %s: %w", sessionKey, err)
	}
	return nil
}
