package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

type PresenceRepo struct {
	db *sql.DB
}

func NewPresenceRepo(db *sql.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

var _ domain.PresenceRepository = (*PresenceRepo)(nil)

func (r *PresenceRepo) Upsert(ctx context.Context, p *domain.Presence) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO presence (user_id, status, last_activity, device_id, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			status        = EXCLUDED.status,
			last_activity = EXCLUDED.last_activity,
			device_id     = EXCLUDED.device_id,
			is_active     = EXCLUDED.is_active
	`, p.UserID, p.Status, p.LastActivity, p.DeviceID, p.IsActive)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (r *PresenceRepo) Get(ctx context.Context, userID int64) (*domain.Presence, error) {
	p := &domain.Presence{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, status, last_activity, device_id, is_active
		FROM presence WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Status, &p.LastActivity, &p.DeviceID, &p.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get presence: %w", err)
	}
	return p, nil
}

func (r *PresenceRepo) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Presence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, status, last_activity, device_id, is_active
		FROM presence
		WHERE status <> 'offline' AND last_activity < $1
		ORDER BY user_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale presence: %w", err)
	}
	defer rows.Close()

	var res []*domain.Presence
	for rows.Next() {
		p := &domain.Presence{}
		if err := rows.Scan(&p.UserID, &p.Status, &p.LastActivity, &p.DeviceID, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
