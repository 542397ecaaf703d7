package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type RelationshipRepo struct {
	db *sql.DB
}

func NewRelationshipRepo(db *sql.DB) *RelationshipRepo {
	return &RelationshipRepo{db: db}
}

var _ domain.RelationshipRepository = (*RelationshipRepo)(nil)

// Create inserts or replaces a relationship edge.
func (r *RelationshipRepo) Create(ctx context.Context, rel *domain.Relationship) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relationships (requester_id, addressee_id, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (requester_id, addressee_id) DO UPDATE SET status = excluded.status
	`, rel.RequesterID, rel.AddresseeID, rel.Status, rel.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (r *RelationshipRepo) ListAcceptedPeerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN requester_id = ? THEN addressee_id ELSE requester_id END
		FROM relationships
		WHERE status = 'accepted' AND (requester_id = ? OR addressee_id = ?)
	`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list accepted peers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan peer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
