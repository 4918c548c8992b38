// Package engine implements the campaign dispatch core: job creation with
// suppression pre-filtering, batched rate-limited claiming, per-job
// render/send cycles with retry and backoff, and campaign-level accounting.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/brightpost/campaign-engine/internal/errors"
	"github.com/brightpost/campaign-engine/internal/model"
	"github.com/brightpost/campaign-engine/internal/transport"
)

type Config struct {
	Workers         int
	BatchSize       int
	EmailRateLimit  int // sends per minute, shared across campaigns
	BatchDelay      time.Duration
	SendTimeout     time.Duration
	MaxRetries      int
	Backoff         Backoff
	StaleClaimAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.EmailRateLimit <= 0 {
		c.EmailRateLimit = 600
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = model.DefaultMaxRetries
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 5 * time.Minute
	}
	return c
}

// Engine coordinates send runs. One run loop exists per sending campaign
// per process; many dispatch workers execute the per-job cycles inside a
// run. The claimed-job exclusivity comes from the JobStore, the pacing from
// the shared Limiter.
type Engine struct {
	cfg          Config
	jobs         JobStore
	campaigns    CampaignStore
	contacts     ContactStore
	suppressions SuppressionStore
	events       EventBus
	sender       transport.Sender
	agg          *Aggregator
	limiter      *Limiter
	log          zerolog.Logger

	mu   sync.Mutex
	runs map[int]bool
	wg   sync.WaitGroup
}

func New(
	cfg Config,
	jobs JobStore,
	campaigns CampaignStore,
	contacts ContactStore,
	suppressions SuppressionStore,
	sender transport.Sender,
	events EventBus,
	log zerolog.Logger,
) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:          cfg,
		jobs:         jobs,
		campaigns:    campaigns,
		contacts:     contacts,
		suppressions: suppressions,
		events:       events,
		sender:       sender,
		agg:          NewAggregator(campaigns, jobs, log),
		limiter:      NewLimiter(cfg.EmailRateLimit, cfg.BatchDelay),
		log:          log,
		runs:         map[int]bool{},
	}
}

// StartCampaignSend moves the campaign into `sending`, creates one delivery
// job per non-suppressed recipient and starts the run loop. Calling it for
// a campaign already in `sending` resumes the run (restart recovery); job
// creation is idempotent so a partially created batch is completed rather
// than duplicated.
func (e *Engine) StartCampaignSend(ctx context.Context, campaignID int) error {
	c, err := e.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}

	if c.Status != model.CampaignSending {
		from := []model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused}
		applied, err := e.campaigns.TransitionStatus(ctx, campaignID, from, model.CampaignSending)
		if err != nil {
			return err
		}
		if !applied {
			return appErrors.NewCampaignNotSendable(campaignID, string(c.Status))
		}
	}

	if err := e.createJobsForCampaign(ctx, c); err != nil {
		// The campaign stays in `sending`; a retried start completes the
		// batch because job creation is idempotent.
		e.log.Error().Err(err).Int("campaign_id", campaignID).Msg("job creation incomplete")
		return err
	}

	e.spawnRun(ctx, campaignID)
	return nil
}

// PauseCampaignSend stops further dispatching for the campaign. In-flight
// sends complete; every run loop observes the status before its next claim.
func (e *Engine) PauseCampaignSend(ctx context.Context, campaignID int) error {
	applied, err := e.campaigns.TransitionStatus(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignSending}, model.CampaignPaused)
	if err != nil {
		return err
	}
	if !applied {
		c, err := e.campaigns.Get(ctx, campaignID)
		if err != nil {
			return err
		}
		return appErrors.NewCampaignNotPausable(campaignID, string(c.Status))
	}
	e.log.Info().Int("campaign_id", campaignID).Msg("campaign paused")
	return nil
}

// ResumeActive restarts run loops for campaigns left in `sending`, e.g.
// after a worker process restart.
func (e *Engine) ResumeActive(ctx context.Context) error {
	ids, err := e.campaigns.ActiveIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		e.log.Info().Int("campaign_id", id).Msg("resuming active campaign")
		e.spawnRun(ctx, id)
	}
	return nil
}

// RunSweeper periodically requeues jobs abandoned in `sending` by crashed
// workers. The requeue does not consume a retry attempt: delivery is
// at-least-once, a crash must not burn the job's retry budget.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := e.jobs.ReclaimStale(ctx, e.cfg.StaleClaimAfter)
			if err != nil {
				e.log.Error().Err(err).Msg("stale job sweep failed")
				continue
			}
			if n > 0 {
				e.log.Warn().Int64("jobs", n).Msg("requeued stale sending jobs")
			}
		}
	}
}

// Wait blocks until all run loops have exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) createJobsForCampaign(ctx context.Context, c *model.Campaign) error {
	it, err := e.contacts.ListRecipients(ctx, c.ID)
	if err != nil {
		return err
	}
	defer it.Close()

	total, skipped := 0, 0
	for it.Next() {
		contact := it.Contact()
		total++

		suppressed, err := e.suppressions.IsSuppressed(ctx, contact.Email)
		if err != nil {
			return err
		}
		if suppressed {
			// A recipient suppressed after their job was created (resumed
			// run) settles through that job's outcome, not as a skip.
			exists, err := e.jobs.Exists(ctx, c.ID, contact.ID)
			if err != nil {
				return err
			}
			if !exists {
				skipped++
			}
			continue
		}

		job := &model.DeliveryJob{
			CampaignID: c.ID,
			ContactID:  contact.ID,
			Email:      contact.Email,
			Status:     model.JobPending,
			MaxRetries: e.cfg.MaxRetries,
		}
		if _, err := e.jobs.Create(ctx, job); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	if err := e.campaigns.SetRecipientTotals(ctx, c.ID, total, skipped); err != nil {
		return err
	}
	e.log.Info().
		Int("campaign_id", c.ID).
		Int("recipients", total).
		Int("skipped", skipped).
		Msg("delivery jobs created")
	return nil
}

func (e *Engine) spawnRun(ctx context.Context, campaignID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runs[campaignID] {
		return
	}
	e.runs[campaignID] = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.runs, campaignID)
			e.mu.Unlock()
		}()
		e.runLoop(ctx, campaignID)
	}()
}

func (e *Engine) runLoop(ctx context.Context, campaignID int) {
	log := e.log.With().
		Int("campaign_id", campaignID).
		Str("run_id", uuid.NewString()).
		Logger()
	log.Info().Msg("send run started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("send run interrupted")
			return
		}

		// Status is re-read before every claim so pause/cancel is observed
		// before the next batch, never mid-send.
		c, err := e.campaigns.Get(ctx, campaignID)
		if err != nil {
			log.Error().Err(err).Msg("load campaign failed, stopping run")
			return
		}
		if c.Status != model.CampaignSending {
			log.Info().Str("status", string(c.Status)).Msg("send run stopped")
			return
		}

		batch, err := e.jobs.ClaimNextBatch(ctx, campaignID, e.cfg.BatchSize)
		if err != nil {
			log.Error().Err(err).Msg("claim batch failed")
			if e.limiter.PauseBetweenBatches(ctx) != nil {
				return
			}
			continue
		}

		if len(batch) == 0 {
			remaining, err := e.jobs.Remaining(ctx, campaignID)
			if err == nil && remaining == 0 {
				if err := e.agg.FinalizeIfComplete(ctx, campaignID); err != nil {
					log.Error().Err(err).Msg("finalize check failed")
				}
				log.Info().Msg("send run complete")
				return
			}
			// Jobs exist but are waiting out their backoff.
			if e.limiter.PauseBetweenBatches(ctx) != nil {
				return
			}
			continue
		}

		e.dispatchBatch(ctx, c, batch, log)

		if e.limiter.PauseBetweenBatches(ctx) != nil {
			return
		}
	}
}
