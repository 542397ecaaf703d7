package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	if c.Status == "" {
		c.Status = domain.ConversationActive
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO conversations (user1_id, user2_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, c.User1ID, c.User2ID, c.Status).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `
		SELECT id, user1_id, user2_id, status, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id)
}

func (r *ConversationRepo) GetActiveForParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `
		SELECT id, user1_id, user2_id, status, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND status = 'active' AND (user1_id = $2 OR user2_id = $2)
	`, conversationID, userID)
}

func (r *ConversationRepo) scanConversation(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.User1ID, &c.User2ID, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}
