package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/brightpost/campaign-engine/internal/model"
	"github.com/brightpost/campaign-engine/internal/template"
	"github.com/brightpost/campaign-engine/internal/transport"
)

// dispatchBatch fans a claimed batch out to the worker pool and waits for
// all outcomes to be recorded. Each job is processed by exactly one worker;
// exclusivity was already established by the claim.
func (e *Engine) dispatchBatch(ctx context.Context, c *model.Campaign, batch []model.DeliveryJob, log zerolog.Logger) {
	workers := e.cfg.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	queue := make(chan model.DeliveryJob)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := e.limiter.Wait(ctx); err != nil {
					// Interrupted mid-batch: the job stays claimed and the
					// stale sweep returns it to the queue.
					return
				}
				e.processJob(ctx, c, job, log)
			}
		}()
	}

feed:
	for _, job := range batch {
		select {
		case <-ctx.Done():
			break feed
		case queue <- job:
		}
	}
	close(queue)
	wg.Wait()
}

func (e *Engine) processJob(ctx context.Context, c *model.Campaign, job model.DeliveryJob, log zerolog.Logger) {
	outcome := e.attempt(ctx, c, &job)

	// Eligibility time for the retry this outcome may schedule.
	nextAttempt := time.Now().Add(e.cfg.Backoff.Delay(job.AttemptCount + 1))

	status, err := e.jobs.RecordOutcome(ctx, job.ID, outcome, nextAttempt)
	if err != nil {
		log.Error().Err(err).Int("job_id", job.ID).Msg("record outcome failed")
		return
	}

	if outcome.Kind == model.OutcomeBounced {
		if err := e.suppressions.Add(ctx, job.Email, model.SuppressionHardBounce); err != nil {
			log.Warn().Err(err).Str("email", job.Email).Msg("suppression add failed")
		}
		if e.events != nil {
			if err := e.events.PublishSuppression(ctx, job.Email, model.SuppressionHardBounce); err != nil {
				log.Warn().Err(err).Str("email", job.Email).Msg("suppression event publish failed")
			}
		}
	}

	log.Debug().
		Int("job_id", job.ID).
		Str("outcome", string(outcome.Kind)).
		Str("status", string(status)).
		Str("reason", outcome.Reason).
		Msg("job processed")

	if status.IsTerminal() {
		if err := e.agg.Apply(ctx, c.ID, status); err != nil {
			log.Error().Err(err).Int("job_id", job.ID).Msg("counter update failed")
		}
	}
}

// attempt runs one delivery cycle for a claimed job: suppression re-check,
// variable validation, rendering and the transport call. It never returns
// a process-level error; every failure mode maps onto an outcome so one bad
// recipient cannot halt the campaign.
func (e *Engine) attempt(ctx context.Context, c *model.Campaign, job *model.DeliveryJob) model.Outcome {
	// Recipients can be suppressed after job creation (mid-campaign
	// unsubscribe), so the check runs again per attempt.
	suppressed, err := e.suppressions.IsSuppressed(ctx, job.Email)
	if err != nil {
		return model.TransientFailure("suppression check: " + err.Error())
	}
	if suppressed {
		return model.PermanentFailure("suppressed")
	}

	contact, err := e.contacts.GetByID(ctx, job.ContactID)
	if err != nil {
		return model.TransientFailure("load contact: " + err.Error())
	}
	if contact == nil {
		return model.PermanentFailure("contact no longer exists")
	}

	values := mergeValues(c, contact)
	vars := template.Extract(c.Subject + " " + c.BodyHTML)
	if ok, missing := template.Validate(vars, values); !ok {
		return model.PermanentFailure("missing_variables: " + strings.Join(missing, ","))
	}

	msg := transport.Message{
		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		To:        job.Email,
		Subject:   template.Render(c.Subject, values),
		HTMLBody:  template.Render(c.BodyHTML, values),
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()
	res, err := e.sender.Send(sendCtx, msg)
	return transport.Classify(res, err)
}

// mergeValues builds the template value set: contact identity and custom
// fields, overridden by campaign-level variables.
func mergeValues(c *model.Campaign, contact *model.Contact) map[string]string {
	values := contact.Fields()
	for k, v := range c.Variables {
		if v != "" {
			values[k] = v
		}
	}
	return values
}
