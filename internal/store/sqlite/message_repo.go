package sqlite

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
	m.CreatedAt = m.CreatedAt.UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, type, created_at, read_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0)
	`,
		m.ConversationID,
		m.SenderID,
		m.ReceiverID,
		m.Content,
		m.Type,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, created_at, read_at, is_deleted
		FROM messages WHERE id = ?
	`, id).Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.Type,
		&m.CreatedAt,
		&m.ReadAt,
		&m.IsDeleted,
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
		WHERE conversation_id = ? AND is_deleted = 0 AND (? = 0 OR id < ?)
		ORDER BY id DESC
		LIMIT ?
	`, conversationID, beforeID, beforeID, limit)
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
		UPDATE messages SET read_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND read_at IS NULL AND is_deleted = 0
		RETURNING id
	`, readAt.UTC(), conversationID, readerID)
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
