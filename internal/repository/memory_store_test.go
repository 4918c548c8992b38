package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightpost/campaign-engine/internal/model"
)

func seedJobs(t *testing.T, store *MemoryStore, campaignID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		contactID := store.AddContact(model.Contact{Email: "c@example.test"})
		job := &model.DeliveryJob{
			CampaignID: campaignID,
			ContactID:  contactID,
			Email:      "c@example.test",
			Status:     model.JobPending,
			MaxRetries: 3,
		}
		created, err := store.Create(context.Background(), job)
		if err != nil || !created {
			t.Fatalf("seed job %d: created=%v err=%v", i, created, err)
		}
	}
}

func TestCreateIsIdempotentPerRecipient(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	contactID := store.AddContact(model.Contact{Email: "a@example.test"})

	job := &model.DeliveryJob{CampaignID: campaignID, ContactID: contactID, Email: "a@example.test", Status: model.JobPending}
	created, err := store.Create(context.Background(), job)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &model.DeliveryJob{CampaignID: campaignID, ContactID: contactID, Email: "a@example.test", Status: model.JobPending}
	created, err = store.Create(context.Background(), dup)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second create for same campaign/contact must be a no-op")
	}
	if got := len(store.JobsByCampaign(campaignID)); got != 1 {
		t.Errorf("expected 1 job, got %d", got)
	}
}

func TestClaimNextBatchIsExclusive(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	seedJobs(t, store, campaignID, 50)

	var (
		mu      sync.Mutex
		claimed = map[int]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := store.ClaimNextBatch(context.Background(), campaignID, 7)
				if err != nil {
					t.Error(err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, j := range batch {
					claimed[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 50 {
		t.Fatalf("expected 50 distinct jobs claimed, got %d", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("job %d claimed %d times", id, n)
		}
	}
}

func TestClaimSkipsJobsWaitingOutBackoff(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	seedJobs(t, store, campaignID, 1)

	batch, _ := store.ClaimNextBatch(context.Background(), campaignID, 10)
	if len(batch) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(batch))
	}
	// Transient outcome schedules a retry in the future.
	status, err := store.RecordOutcome(context.Background(), batch[0].ID, model.TransientFailure("451"), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if status != model.JobRetrying {
		t.Fatalf("expected retrying, got %s", status)
	}

	batch, _ = store.ClaimNextBatch(context.Background(), campaignID, 10)
	if len(batch) != 0 {
		t.Errorf("job waiting out backoff must not be claimable, got %d", len(batch))
	}
}

func TestRecordOutcomeTransientRetryArithmetic(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	contactID := store.AddContact(model.Contact{Email: "f@example.test"})
	job := &model.DeliveryJob{
		CampaignID: campaignID,
		ContactID:  contactID,
		Email:      "f@example.test",
		Status:     model.JobPending,
		MaxRetries: 2,
	}
	store.Create(context.Background(), job)

	// Two transient failures consume the retry budget, the third is final.
	for want := 1; want <= 2; want++ {
		batch, _ := store.ClaimNextBatch(context.Background(), campaignID, 1)
		if len(batch) != 1 {
			t.Fatalf("claim %d: got %d jobs", want, len(batch))
		}
		status, err := store.RecordOutcome(context.Background(), job.ID, model.TransientFailure("451"), time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if status != model.JobRetrying {
			t.Fatalf("attempt %d: expected retrying, got %s", want, status)
		}
		j, _ := store.Job(job.ID)
		if j.AttemptCount != want {
			t.Fatalf("attempt %d: expected attempt_count %d, got %d", want, want, j.AttemptCount)
		}
	}

	batch, _ := store.ClaimNextBatch(context.Background(), campaignID, 1)
	if len(batch) != 1 {
		t.Fatalf("final claim: got %d jobs", len(batch))
	}
	status, err := store.RecordOutcome(context.Background(), job.ID, model.TransientFailure("451"), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if status != model.JobFailed {
		t.Errorf("exhausted job must fail, got %s", status)
	}
	j, _ := store.Job(job.ID)
	if j.AttemptCount != 2 {
		t.Errorf("exhaustion must not increment past max_retries, got %d", j.AttemptCount)
	}
}

func TestRecordOutcomeRequiresClaim(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	seedJobs(t, store, campaignID, 1)
	jobs := store.JobsByCampaign(campaignID)

	_, err := store.RecordOutcome(context.Background(), jobs[0].ID, model.Sent(), time.Now())
	if err == nil {
		t.Error("recording an outcome for an unclaimed job must fail")
	}
}

func TestReclaimStalePreservesAttemptCount(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	seedJobs(t, store, campaignID, 1)

	batch, _ := store.ClaimNextBatch(context.Background(), campaignID, 1)
	if len(batch) != 1 {
		t.Fatal("expected a claim")
	}

	// Let the claim age past the threshold.
	time.Sleep(10 * time.Millisecond)
	n, err := store.ReclaimStale(context.Background(), 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}

	j, _ := store.Job(batch[0].ID)
	if j.Status != model.JobRetrying {
		t.Errorf("expected retrying, got %s", j.Status)
	}
	if j.AttemptCount != 0 {
		t.Errorf("a crashed attempt must not consume retry budget, got %d", j.AttemptCount)
	}

	// The job is immediately claimable again.
	batch, _ = store.ClaimNextBatch(context.Background(), campaignID, 1)
	if len(batch) != 1 {
		t.Error("reclaimed job must be claimable")
	}
}

func TestReclaimStaleIgnoresFreshClaims(t *testing.T) {
	store := NewMemoryStore()
	campaignID := store.AddCampaign(model.Campaign{Name: "c"})
	seedJobs(t, store, campaignID, 1)
	store.ClaimNextBatch(context.Background(), campaignID, 1)

	n, err := store.ReclaimStale(context.Background(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("fresh claim must not be reclaimed, got %d", n)
	}
}

func TestTransitionStatusOnlyFromAllowedStates(t *testing.T) {
	store := NewMemoryStore()
	id := store.AddCampaign(model.Campaign{Name: "c", Status: model.CampaignSent})

	applied, err := store.TransitionStatus(context.Background(), id,
		[]model.CampaignStatus{model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused},
		model.CampaignSending)
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("terminal campaign must not transition to sending")
	}

	c, _ := store.Get(context.Background(), id)
	if c.Status != model.CampaignSent {
		t.Errorf("status must be unchanged, got %s", c.Status)
	}
}
