package engine

import (
	"context"
	"time"

	"github.com/brightpost/campaign-engine/internal/model"
)

// JobStore is the durable queue of per-recipient delivery jobs. Claiming
// must be exclusive: two concurrent callers never receive the same job.
type JobStore interface {
	// Create inserts a pending job. It is idempotent on
	// (campaign_id, contact_id) and reports whether a new row was created.
	Create(ctx context.Context, job *model.DeliveryJob) (bool, error)

	// Exists reports whether a job already exists for the recipient.
	Exists(ctx context.Context, campaignID, contactID int) (bool, error)

	// ClaimNextBatch atomically moves up to n due pending/retrying jobs of
	// the campaign into `sending` and returns them.
	ClaimNextBatch(ctx context.Context, campaignID, n int) ([]model.DeliveryJob, error)

	// RecordOutcome applies one outcome to a claimed job and returns the
	// resulting status. nextAttemptAt is the retry eligibility time used
	// when a transient failure leaves retries on the table.
	RecordOutcome(ctx context.Context, jobID int, outcome model.Outcome, nextAttemptAt time.Time) (model.JobStatus, error)

	// Remaining counts jobs of the campaign that are not yet terminal.
	Remaining(ctx context.Context, campaignID int) (int, error)

	// ReclaimStale requeues jobs stuck in `sending` longer than olderThan,
	// leaving attempt_count unchanged. Returns the number requeued.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// Stats returns the per-status job counts of a campaign. This is the
	// ground truth the aggregator reconciles campaign counters against.
	Stats(ctx context.Context, campaignID int) (map[string]int, error)
}

// CampaignStore provides the campaign aggregate the engine reads and the
// atomic counter/status updates it performs.
type CampaignStore interface {
	Get(ctx context.Context, id int) (*model.Campaign, error)

	// TransitionStatus performs a compare-and-swap status update and
	// reports whether it applied.
	TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)

	// SetRecipientTotals records the resolved recipient count and the
	// number pre-skipped by suppression filtering.
	SetRecipientTotals(ctx context.Context, id, total, skipped int) error

	// ApplyCounterDelta atomically increments campaign counters and
	// returns the updated snapshot.
	ApplyCounterDelta(ctx context.Context, id int, d model.CounterDelta) (model.CampaignCounters, error)

	// ActiveIDs lists campaigns currently in `sending`, used to resume
	// run loops after a process restart.
	ActiveIDs(ctx context.Context) ([]int, error)
}

// RecipientIterator streams the resolved recipients of a campaign.
type RecipientIterator interface {
	Next() bool
	Contact() *model.Contact
	Err() error
	Close() error
}

type ContactStore interface {
	ListRecipients(ctx context.Context, campaignID int) (RecipientIterator, error)
	GetByID(ctx context.Context, id int) (*model.Contact, error)
}

type SuppressionStore interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, email string, reason model.SuppressionReason) error
}

// EventBus carries the engine's outbound signals, currently the bounce
// suppression event consumed by list hygiene downstream.
type EventBus interface {
	PublishSuppression(ctx context.Context, email string, reason model.SuppressionReason) error
}
