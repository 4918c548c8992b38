package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/brightpost/campaign-engine/internal/engine"
	"github.com/brightpost/campaign-engine/internal/model"
)

type SuppressionRepository struct {
	DB *sql.DB
}

var _ engine.SuppressionStore = (*SuppressionRepository)(nil)

func (r *SuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM suppressions WHERE email = $1)`, email).Scan(&exists)
	return exists, errors.Wrap(err, "check suppression")
}

func (r *SuppressionRepository) Add(ctx context.Context, email string, reason model.SuppressionReason) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO suppressions (email, reason)
        VALUES ($1, $2)
        ON CONFLICT (email) DO NOTHING`, email, string(reason))
	return errors.Wrap(err, "add suppression")
}

// List returns suppression entries, newest first.
func (r *SuppressionRepository) List(ctx context.Context, limit int) ([]model.Suppression, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, email, reason, created_at FROM suppressions
        ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list suppressions")
	}
	defer rows.Close()

	var out []model.Suppression
	for rows.Next() {
		var s model.Suppression
		if err := rows.Scan(&s.ID, &s.Email, &s.Reason, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
