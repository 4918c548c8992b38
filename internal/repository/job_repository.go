package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/brightpost/campaign-engine/internal/engine"
	appErrors "github.com/brightpost/campaign-engine/internal/errors"
	"github.com/brightpost/campaign-engine/internal/model"
)

type JobRepository struct {
	DB *sql.DB
}

var _ engine.JobStore = (*JobRepository)(nil)

const jobColumns = `id, campaign_id, contact_id, email, status, attempt_count, max_retries,
       last_attempt_at, next_attempt_at, sent_at, error_message, created_at, updated_at`

// Create inserts a pending job, idempotent on (campaign_id, contact_id).
func (r *JobRepository) Create(ctx context.Context, job *model.DeliveryJob) (bool, error) {
	query := `
        INSERT INTO delivery_jobs (campaign_id, contact_id, email, status, max_retries)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
        RETURNING id
    `
	err := r.DB.QueryRowContext(ctx, query,
		job.CampaignID, job.ContactID, job.Email, string(job.Status), job.MaxRetries,
	).Scan(&job.ID)
	if err == sql.ErrNoRows {
		return false, nil // already exists
	}
	if err != nil {
		return false, errors.Wrap(err, "create delivery job")
	}
	return true, nil
}

func (r *JobRepository) Exists(ctx context.Context, campaignID, contactID int) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
        SELECT EXISTS (SELECT 1 FROM delivery_jobs WHERE campaign_id=$1 AND contact_id=$2)`,
		campaignID, contactID).Scan(&exists)
	return exists, errors.Wrap(err, "check job exists")
}

// ClaimNextBatch atomically flips up to n due pending/retrying jobs into
// `sending`. FOR UPDATE SKIP LOCKED makes the claim exclusive: concurrent
// claimers never receive the same row.
func (r *JobRepository) ClaimNextBatch(ctx context.Context, campaignID, n int) ([]model.DeliveryJob, error) {
	query := `
        UPDATE delivery_jobs
        SET status='sending', last_attempt_at=NOW(), updated_at=NOW()
        WHERE id IN (
            SELECT id FROM delivery_jobs
            WHERE campaign_id=$1
              AND status IN ('pending', 'retrying')
              AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
            ORDER BY id
            FOR UPDATE SKIP LOCKED
            LIMIT $2
        )
        RETURNING ` + jobColumns
	rows, err := r.DB.QueryContext(ctx, query, campaignID, n)
	if err != nil {
		return nil, errors.Wrap(err, "claim batch")
	}
	defer rows.Close()

	var jobs []model.DeliveryJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// RecordOutcome applies a delivery outcome to a claimed job. The transient
// case decides retry-vs-exhaustion inside the UPDATE so the attempt
// accounting stays correct under concurrent recorders.
func (r *JobRepository) RecordOutcome(ctx context.Context, jobID int, outcome model.Outcome, nextAttemptAt time.Time) (model.JobStatus, error) {
	var row *sql.Row
	switch outcome.Kind {
	case model.OutcomeSent:
		row = r.DB.QueryRowContext(ctx, `
            UPDATE delivery_jobs
            SET status='sent', sent_at=NOW(), error_message='', next_attempt_at=NULL, updated_at=NOW()
            WHERE id=$1 AND status='sending'
            RETURNING status`, jobID)
	case model.OutcomeTransientFailure:
		row = r.DB.QueryRowContext(ctx, `
            UPDATE delivery_jobs
            SET status = CASE WHEN attempt_count < max_retries THEN 'retrying' ELSE 'failed' END,
                next_attempt_at = CASE WHEN attempt_count < max_retries THEN $2 ELSE NULL END,
                attempt_count = CASE WHEN attempt_count < max_retries THEN attempt_count + 1 ELSE attempt_count END,
                error_message = $3,
                updated_at = NOW()
            WHERE id=$1 AND status='sending'
            RETURNING status`, jobID, nextAttemptAt, outcome.Reason)
	case model.OutcomePermanentFailure:
		row = r.DB.QueryRowContext(ctx, `
            UPDATE delivery_jobs
            SET status='failed', error_message=$2, next_attempt_at=NULL, updated_at=NOW()
            WHERE id=$1 AND status='sending'
            RETURNING status`, jobID, outcome.Reason)
	case model.OutcomeBounced:
		row = r.DB.QueryRowContext(ctx, `
            UPDATE delivery_jobs
            SET status='bounced', error_message=$2, next_attempt_at=NULL, updated_at=NOW()
            WHERE id=$1 AND status='sending'
            RETURNING status`, jobID, outcome.Reason)
	default:
		return "", errors.Errorf("unknown outcome kind %q", outcome.Kind)
	}

	var status string
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", appErrors.NewJobNotFound(jobID)
		}
		return "", errors.Wrap(err, "record outcome")
	}
	return model.JobStatus(status), nil
}

func (r *JobRepository) Remaining(ctx context.Context, campaignID int) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM delivery_jobs
        WHERE campaign_id=$1 AND status IN ('pending', 'retrying', 'sending')`, campaignID).Scan(&n)
	return n, errors.Wrap(err, "count remaining jobs")
}

// ReclaimStale requeues jobs abandoned in `sending` by a crashed worker.
// attempt_count is left untouched: the crash is not counted as an attempt.
func (r *JobRepository) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
        UPDATE delivery_jobs
        SET status='retrying', next_attempt_at=NOW(), updated_at=NOW()
        WHERE status='sending' AND updated_at < NOW() - $1 * INTERVAL '1 second'
    `
	res, err := r.DB.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, errors.Wrap(err, "reclaim stale jobs")
	}
	return res.RowsAffected()
}

// Stats returns the per-status job counts of a campaign.
func (r *JobRepository) Stats(ctx context.Context, campaignID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT status, COUNT(*) FROM delivery_jobs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "campaign job stats")
	}
	defer rows.Close()

	stats := map[string]int{
		"pending": 0, "sending": 0, "sent": 0, "failed": 0, "bounced": 0, "retrying": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.DeliveryJob, error) {
	var j model.DeliveryJob
	err := row.Scan(
		&j.ID, &j.CampaignID, &j.ContactID, &j.Email, &j.Status, &j.AttemptCount, &j.MaxRetries,
		&j.LastAttemptAt, &j.NextAttemptAt, &j.SentAt, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
