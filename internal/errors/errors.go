package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCampaignNotSendable signals a send was requested for a campaign in a
// terminal status.
type ErrCampaignNotSendable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotSendable) Error() string {
	return fmt.Sprintf("campaign %d cannot be sent in status %q", e.CampaignID, e.Status)
}

func NewCampaignNotSendable(id int, status string) error {
	return &ErrCampaignNotSendable{CampaignID: id, Status: status}
}

// ErrCampaignNotPausable signals a pause was requested for a campaign that
// is not sending.
type ErrCampaignNotPausable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotPausable) Error() string {
	return fmt.Sprintf("campaign %d cannot be paused in status %q", e.CampaignID, e.Status)
}

func NewCampaignNotPausable(id int, status string) error {
	return &ErrCampaignNotPausable{CampaignID: id, Status: status}
}

// ErrJobNotFound is returned when an outcome is recorded for an unknown job.
type ErrJobNotFound struct {
	JobID int
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("delivery job with ID %d not found", e.JobID)
}

func NewJobNotFound(id int) error {
	return &ErrJobNotFound{JobID: id}
}
