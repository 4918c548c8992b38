package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brightpost/campaign-engine/internal/engine"
	appErrors "github.com/brightpost/campaign-engine/internal/errors"
	"github.com/brightpost/campaign-engine/internal/model"
)

// MemoryStore implements every engine store contract in memory with the
// same semantics as the Postgres repositories: conditional status updates,
// exclusive batch claiming and atomic counter deltas, all under one mutex.
// It backs the engine tests and local runs without a database.
type MemoryStore struct {
	mu sync.Mutex

	campaigns  map[int]*model.Campaign
	contacts   map[int]*model.Contact
	recipients map[int][]int // campaign id -> contact ids
	suppressed map[string]model.SuppressionReason
	jobs       map[int]*model.DeliveryJob

	nextCampaignID int
	nextContactID  int
	nextJobID      int

	now func() time.Time
}

var (
	_ engine.JobStore         = (*MemoryStore)(nil)
	_ engine.CampaignStore    = (*MemoryStore)(nil)
	_ engine.ContactStore     = (*MemoryStore)(nil)
	_ engine.SuppressionStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:  map[int]*model.Campaign{},
		contacts:   map[int]*model.Contact{},
		recipients: map[int][]int{},
		suppressed: map[string]model.SuppressionReason{},
		jobs:       map[int]*model.DeliveryJob{},
		now:        time.Now,
	}
}

// ---------------------- seeding helpers ----------------------

func (s *MemoryStore) AddCampaign(c model.Campaign) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCampaignID++
	c.ID = s.nextCampaignID
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = s.now()
	s.campaigns[c.ID] = &c
	return c.ID
}

func (s *MemoryStore) AddContact(c model.Contact) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextContactID++
	c.ID = s.nextContactID
	s.contacts[c.ID] = &c
	return c.ID
}

func (s *MemoryStore) AddRecipient(campaignID, contactID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[campaignID] = append(s.recipients[campaignID], contactID)
}

// ---------------------- engine.CampaignStore ----------------------

func (s *MemoryStore) Get(ctx context.Context, id int) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, appErrors.NewCampaignNotFound(id)
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			now := s.now()
			c.UpdatedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SetRecipientTotals(ctx context.Context, id, total, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.TotalRecipients = total
	c.SkippedCount = skipped
	return nil
}

func (s *MemoryStore) ApplyCounterDelta(ctx context.Context, id int, d model.CounterDelta) (model.CampaignCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return model.CampaignCounters{}, appErrors.NewCampaignNotFound(id)
	}
	c.SentCount += d.Sent
	c.FailedCount += d.Failed
	c.BouncedCount += d.Bounced
	return model.CampaignCounters{
		Total:   c.TotalRecipients,
		Sent:    c.SentCount,
		Failed:  c.FailedCount,
		Bounced: c.BouncedCount,
		Skipped: c.SkippedCount,
	}, nil
}

func (s *MemoryStore) ActiveIDs(ctx context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, c := range s.campaigns {
		if c.Status == model.CampaignSending {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// ---------------------- engine.ContactStore ----------------------

func (s *MemoryStore) ListRecipients(ctx context.Context, campaignID int) (engine.RecipientIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var contacts []model.Contact
	for _, cid := range s.recipients[campaignID] {
		if c, ok := s.contacts[cid]; ok {
			contacts = append(contacts, *c)
		}
	}
	return &sliceIterator{contacts: contacts, pos: -1}, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id int) (*model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type sliceIterator struct {
	contacts []model.Contact
	pos      int
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.contacts)
}

func (it *sliceIterator) Contact() *model.Contact { return &it.contacts[it.pos] }
func (it *sliceIterator) Err() error              { return nil }
func (it *sliceIterator) Close() error            { return nil }

// ---------------------- engine.SuppressionStore ----------------------

func (s *MemoryStore) IsSuppressed(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.suppressed[email]
	return ok, nil
}

func (s *MemoryStore) Add(ctx context.Context, email string, reason model.SuppressionReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppressed[email]; !ok {
		s.suppressed[email] = reason
	}
	return nil
}

// ---------------------- engine.JobStore ----------------------

func (s *MemoryStore) Create(ctx context.Context, job *model.DeliveryJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.CampaignID == job.CampaignID && j.ContactID == job.ContactID {
			return false, nil
		}
	}
	s.nextJobID++
	cp := *job
	cp.ID = s.nextJobID
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[cp.ID] = &cp
	job.ID = cp.ID
	return true, nil
}

func (s *MemoryStore) Exists(ctx context.Context, campaignID, contactID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.CampaignID == campaignID && j.ContactID == contactID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ClaimNextBatch(ctx context.Context, campaignID, n int) ([]model.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	now := s.now()
	var claimed []model.DeliveryJob
	for _, id := range ids {
		if len(claimed) >= n {
			break
		}
		j := s.jobs[id]
		if j.CampaignID != campaignID {
			continue
		}
		if !model.IsValidJobTransition(j.Status, model.JobSending) {
			continue
		}
		if j.NextAttemptAt != nil && j.NextAttemptAt.After(now) {
			continue
		}
		j.Status = model.JobSending
		t := now
		j.LastAttemptAt = &t
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *MemoryStore) RecordOutcome(ctx context.Context, jobID int, outcome model.Outcome, nextAttemptAt time.Time) (model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok || j.Status != model.JobSending {
		return "", appErrors.NewJobNotFound(jobID)
	}
	now := s.now()
	switch outcome.Kind {
	case model.OutcomeSent:
		j.Status = model.JobSent
		t := now
		j.SentAt = &t
		j.ErrorMessage = ""
		j.NextAttemptAt = nil
	case model.OutcomeTransientFailure:
		if j.AttemptCount < j.MaxRetries {
			j.Status = model.JobRetrying
			j.AttemptCount++
			t := nextAttemptAt
			j.NextAttemptAt = &t
		} else {
			j.Status = model.JobFailed
			j.NextAttemptAt = nil
		}
		j.ErrorMessage = outcome.Reason
	case model.OutcomePermanentFailure:
		j.Status = model.JobFailed
		j.ErrorMessage = outcome.Reason
		j.NextAttemptAt = nil
	case model.OutcomeBounced:
		j.Status = model.JobBounced
		j.ErrorMessage = outcome.Reason
		j.NextAttemptAt = nil
	}
	j.UpdatedAt = now
	return j.Status, nil
}

func (s *MemoryStore) Remaining(ctx context.Context, campaignID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.CampaignID != campaignID {
			continue
		}
		if !j.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(ctx context.Context, campaignID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := map[string]int{}
	for _, j := range s.jobs {
		if j.CampaignID == campaignID {
			stats[string(j.Status)]++
		}
	}
	return stats, nil
}

func (s *MemoryStore) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-olderThan)
	var n int64
	for _, j := range s.jobs {
		if j.Status == model.JobSending && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobRetrying
			t := now
			j.NextAttemptAt = &t
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Job returns a snapshot of one job, for tests and tooling.
func (s *MemoryStore) Job(id int) (model.DeliveryJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.DeliveryJob{}, false
	}
	return *j, true
}

// JobsByCampaign returns snapshots of all jobs of a campaign, ordered by id.
func (s *MemoryStore) JobsByCampaign(campaignID int) []model.DeliveryJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.jobs))
	for id, j := range s.jobs {
		if j.CampaignID == campaignID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]model.DeliveryJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.jobs[id])
	}
	return out
}
