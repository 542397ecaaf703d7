package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type RelationshipRepo struct {
	db *sql.DB
}

func NewRelationshipRepo(db *sql.DB) *RelationshipRepo {
	return &RelationshipRepo{db: db}
}

var _ domain.RelationshipRepository = (*RelationshipRepo)(nil)

func (r *RelationshipRepo) Create(ctx context.Context, rel *domain.Relationship) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO relationships (requester_id, addressee_id, status, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (requester_id, addressee_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING created_at
	`, rel.RequesterID, rel.AddresseeID, rel.Status).Scan(&rel.CreatedAt)
}

func (r *RelationshipRepo) ListAcceptedPeerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN requester_id = $1 THEN addressee_id ELSE requester_id END
		FROM relationships
		WHERE status = 'accepted' AND (requester_id = $1 OR addressee_id = $1)
	`, userID)
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
