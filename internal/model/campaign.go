package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// IsTerminal reports whether no further send activity may happen for the campaign.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignSent || s == CampaignCancelled || s == CampaignFailed
}

type Campaign struct {
	ID        int            `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Subject   string         `db:"subject" json:"subject"`
	FromName  string         `db:"from_name" json:"from_name"`
	FromEmail string         `db:"from_email" json:"from_email"`
	BodyHTML  string         `db:"body_html" json:"body_html"`
	Status    CampaignStatus `db:"status" json:"status"`
	// Variables holds campaign-level overrides merged over contact fields at render time.
	Variables   map[string]string `db:"variables" json:"variables,omitempty"`
	ScheduledAt *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`

	TotalRecipients int `db:"total_recipients" json:"total_recipients"`
	SentCount       int `db:"sent_count" json:"sent_count"`
	FailedCount     int `db:"failed_count" json:"failed_count"`
	BouncedCount    int `db:"bounced_count" json:"bounced_count"`
	SkippedCount    int `db:"skipped_count" json:"skipped_count"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Accounted is the number of recipients with a settled outcome, including
// recipients skipped by suppression pre-filtering at job creation.
func (c *Campaign) Accounted() int {
	return c.SentCount + c.FailedCount + c.BouncedCount + c.SkippedCount
}

// Complete reports whether every recipient has been accounted for.
func (c *Campaign) Complete() bool {
	return c.TotalRecipients > 0 && c.Accounted() >= c.TotalRecipients
}
