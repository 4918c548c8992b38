package model

import "time"

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobSending  JobStatus = "sending"
	JobSent     JobStatus = "sent"
	JobFailed   JobStatus = "failed"
	JobBounced  JobStatus = "bounced"
	JobRetrying JobStatus = "retrying"
)

// IsTerminal reports whether a job status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobSent || s == JobFailed || s == JobBounced
}

type jobTransition struct {
	From JobStatus
	To   JobStatus
}

var validJobTransitions = []jobTransition{
	{From: JobPending, To: JobSending},
	{From: JobRetrying, To: JobSending},
	{From: JobSending, To: JobSent},
	{From: JobSending, To: JobRetrying},
	{From: JobSending, To: JobFailed},
	{From: JobSending, To: JobBounced},
}

// IsValidJobTransition reports whether the job state machine allows moving
// between the two statuses. Stores use it to guard claims.
func IsValidJobTransition(from, to JobStatus) bool {
	for _, t := range validJobTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// DeliveryJob is one per-recipient unit of send work for a campaign.
// Exactly one job exists per (campaign_id, contact_id); jobs are never
// deleted and serve as the audit trail of a send run.
type DeliveryJob struct {
	ID           int       `db:"id" json:"id"`
	CampaignID   int       `db:"campaign_id" json:"campaign_id"`
	ContactID    int       `db:"contact_id" json:"contact_id"`
	Email        string    `db:"email" json:"email"`
	Status       JobStatus `db:"status" json:"status"`
	AttemptCount int       `db:"attempt_count" json:"attempt_count"`
	MaxRetries   int       `db:"max_retries" json:"max_retries"`

	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage  string     `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultMaxRetries bounds transient-failure retries per job.
const DefaultMaxRetries = 3
