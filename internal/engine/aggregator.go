package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/brightpost/campaign-engine/internal/model"
)

// Aggregator maintains campaign-level counters from job outcomes and
// finalizes the campaign once every recipient is accounted for. All counter
// math happens in the store's atomic delta update, so the aggregator is
// correct across multiple worker processes.
type Aggregator struct {
	campaigns CampaignStore
	jobs      JobStore
	log       zerolog.Logger
}

func NewAggregator(campaigns CampaignStore, jobs JobStore, log zerolog.Logger) *Aggregator {
	return &Aggregator{campaigns: campaigns, jobs: jobs, log: log}
}

// Apply records one terminal job status against the campaign counters and
// finalizes the campaign when the run is complete. Non-terminal statuses
// are ignored.
func (a *Aggregator) Apply(ctx context.Context, campaignID int, status model.JobStatus) error {
	var d model.CounterDelta
	switch status {
	case model.JobSent:
		d.Sent = 1
	case model.JobFailed:
		d.Failed = 1
	case model.JobBounced:
		d.Bounced = 1
	default:
		return nil
	}

	counters, err := a.campaigns.ApplyCounterDelta(ctx, campaignID, d)
	if err != nil {
		return err
	}
	if counters.Complete() {
		return a.finalize(ctx, campaignID, counters)
	}
	return nil
}

// FinalizeIfComplete recomputes completion from job ground truth. Used when
// a run loop drains with no jobs left: at that point every job is terminal,
// so the per-status job counts are authoritative. A counter delta lost
// between an outcome write and the counter write (failed UPDATE, process
// death in between) is repaired here instead of stranding the campaign in
// `sending`.
func (a *Aggregator) FinalizeIfComplete(ctx context.Context, campaignID int) error {
	c, err := a.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignSending {
		return nil
	}

	stats, err := a.jobs.Stats(ctx, campaignID)
	if err != nil {
		return err
	}
	counters := model.CampaignCounters{
		Total:   c.TotalRecipients,
		Sent:    stats[string(model.JobSent)],
		Failed:  stats[string(model.JobFailed)],
		Bounced: stats[string(model.JobBounced)],
		Skipped: c.SkippedCount,
	}

	d := model.CounterDelta{
		Sent:    counters.Sent - c.SentCount,
		Failed:  counters.Failed - c.FailedCount,
		Bounced: counters.Bounced - c.BouncedCount,
	}
	if d != (model.CounterDelta{}) {
		a.log.Warn().
			Int("campaign_id", campaignID).
			Int("sent_delta", d.Sent).
			Int("failed_delta", d.Failed).
			Int("bounced_delta", d.Bounced).
			Msg("campaign counters reconciled from job statuses")
		if _, err := a.campaigns.ApplyCounterDelta(ctx, campaignID, d); err != nil {
			return err
		}
	}

	if counters.Complete() || c.TotalRecipients == 0 {
		return a.finalize(ctx, campaignID, counters)
	}
	return nil
}

func (a *Aggregator) finalize(ctx context.Context, campaignID int, counters model.CampaignCounters) error {
	to := model.CampaignFailed
	if counters.Sent > 0 {
		to = model.CampaignSent
	}
	applied, err := a.campaigns.TransitionStatus(ctx, campaignID, []model.CampaignStatus{model.CampaignSending}, to)
	if err != nil {
		return err
	}
	if applied {
		a.log.Info().
			Int("campaign_id", campaignID).
			Str("status", string(to)).
			Int("sent", counters.Sent).
			Int("failed", counters.Failed).
			Int("bounced", counters.Bounced).
			Int("skipped", counters.Skipped).
			Msg("campaign finalized")
	}
	return nil
}
