package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

const conversationColumns = `id, user1_id, user2_id, status, created_at, updated_at`

// Create inserts a conversation between two users.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	now := time.Now().UTC()
	if c.Status == "" {
		c.Status = domain.ConversationActive
	}
	c.CreatedAt, c.UpdatedAt = now, now
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (user1_id, user2_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.User1ID, c.User2ID, c.Status, now, now)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (r *ConversationRepo) GetActiveForParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	return r.scanConversation(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = ? AND status = 'active' AND (user1_id = ? OR user2_id = ?)
	`, conversationID, userID, userID)
}

func (r *ConversationRepo) scanConversation(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID,
		&c.User1ID,
		&c.User2ID,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}
