package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/brightpost/campaign-engine/internal/engine"
	appErrors "github.com/brightpost/campaign-engine/internal/errors"
	"github.com/brightpost/campaign-engine/internal/model"
)

type CampaignRepository struct {
	DB *sql.DB
}

var _ engine.CampaignStore = (*CampaignRepository)(nil)

const campaignColumns = `id, name, subject, from_name, from_email, body_html, status, variables,
       scheduled_at, total_recipients, sent_count, failed_count, bounced_count, skipped_count,
       created_at, updated_at`

func (r *CampaignRepository) Get(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, errors.Wrap(err, "get campaign")
	}
	return c, nil
}

// TransitionStatus is the conditional status update all engine state
// changes go through: it applies only when the current status is one of
// `from`, so concurrent writers cannot race a campaign into an invalid
// state.
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
	res, err := r.DB.ExecContext(ctx, query, string(to), id, pq.Array(fromStr))
	if err != nil {
		return false, errors.Wrap(err, "transition campaign status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) SetRecipientTotals(ctx context.Context, id, total, skipped int) error {
	query := `UPDATE campaigns SET total_recipients=$2, skipped_count=$3, updated_at=NOW() WHERE id=$1`
	_, err := r.DB.ExecContext(ctx, query, id, total, skipped)
	return errors.Wrap(err, "set recipient totals")
}

func (r *CampaignRepository) ApplyCounterDelta(ctx context.Context, id int, d model.CounterDelta) (model.CampaignCounters, error) {
	query := `
        UPDATE campaigns
        SET sent_count = sent_count + $2,
            failed_count = failed_count + $3,
            bounced_count = bounced_count + $4,
            updated_at = NOW()
        WHERE id = $1
        RETURNING total_recipients, sent_count, failed_count, bounced_count, skipped_count
    `
	var c model.CampaignCounters
	err := r.DB.QueryRowContext(ctx, query, id, d.Sent, d.Failed, d.Bounced).
		Scan(&c.Total, &c.Sent, &c.Failed, &c.Bounced, &c.Skipped)
	if err != nil {
		if err == sql.ErrNoRows {
			return c, appErrors.NewCampaignNotFound(id)
		}
		return c, errors.Wrap(err, "apply counter delta")
	}
	return c, nil
}

func (r *CampaignRepository) ActiveIDs(ctx context.Context) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM campaigns WHERE status='sending' ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list active campaigns")
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DueScheduledIDs lists scheduled campaigns whose send time has arrived.
// The worker's scheduler promotes these into send runs.
func (r *CampaignRepository) DueScheduledIDs(ctx context.Context, now time.Time) ([]int, error) {
	query := `SELECT id FROM campaigns WHERE status='scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1 ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, errors.Wrap(err, "list due scheduled campaigns")
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCampaign(row *sql.Row) (*model.Campaign, error) {
	var c model.Campaign
	var variables []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.Subject, &c.FromName, &c.FromEmail, &c.BodyHTML, &c.Status, &variables,
		&c.ScheduledAt, &c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.BouncedCount, &c.SkippedCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &c.Variables); err != nil {
			return nil, errors.Wrap(err, "decode campaign variables")
		}
	}
	return &c, nil
}
