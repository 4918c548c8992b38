package model

import "time"

// SuppressionReason enumerates why an email must never receive mail again.
type SuppressionReason string

const (
	SuppressionHardBounce  SuppressionReason = "hard_bounce"
	SuppressionComplaint   SuppressionReason = "complaint"
	SuppressionUnsubscribe SuppressionReason = "unsubscribe"
	SuppressionManual      SuppressionReason = "manual"
)

// Suppression is one entry in the do-not-send list.
type Suppression struct {
	ID        int               `db:"id" json:"id"`
	Email     string            `db:"email" json:"email"`
	Reason    SuppressionReason `db:"reason" json:"reason"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
