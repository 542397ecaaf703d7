package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_id, receiver_id, content, type, created_at, read_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, FALSE)
		RETURNING id, created_at
	`, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.Type, m.CreatedAt,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, created_at, read_at, is_deleted
		FROM messages WHERE id = $1
	`, id).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type,
		&m.CreatedAt, &m.ReadAt, &m.IsDeleted,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID, beforeID int64, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, created_at, read_at, is_deleted
		FROM messages
		WHERE conversation_id = $1 AND is_deleted = FALSE AND ($2::bigint = 0 OR id < $2::bigint)
		ORDER BY id DESC
		LIMIT $3
	`, conversationID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type,
			&m.CreatedAt, &m.ReadAt, &m.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func (r *MessageRepo) MarkReadInConversation(ctx context.Context, conversationID, readerID int64, readAt time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE messages SET read_at = $1
		WHERE conversation_id = $2 AND receiver_id = $3 AND read_at IS NULL AND is_deleted = FALSE
		RETURNING id
	`, readAt, conversationID, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}
