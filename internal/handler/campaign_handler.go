package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/brightpost/campaign-engine/internal/errors"
	"github.com/brightpost/campaign-engine/internal/model"
	"github.com/brightpost/campaign-engine/internal/template"
)

type CampaignStore interface {
	Get(ctx context.Context, id int) (*model.Campaign, error)
	TransitionStatus(ctx context.Context, id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
}

type JobStats interface {
	Stats(ctx context.Context, campaignID int) (map[string]int, error)
}

type SendCommandPublisher interface {
	PublishSendCommand(ctx context.Context, campaignID int) error
}

type SuppressionList interface {
	List(ctx context.Context, limit int) ([]model.Suppression, error)
}

// CampaignHandler exposes the engine's entry points over HTTP. Campaign
// authoring, contact CRUD and auth live in other services; this surface only
// starts sends, pauses them and reports dispatch progress.
type CampaignHandler struct {
	Campaigns    CampaignStore
	Jobs         JobStats
	Bus          SendCommandPublisher
	Suppressions SuppressionList
	Log          zerolog.Logger
}

// StartSend queues a send command for the dispatcher.
func (h *CampaignHandler) StartSend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := h.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	switch c.Status {
	case model.CampaignDraft, model.CampaignScheduled, model.CampaignPaused, model.CampaignSending:
		// sendable (sending = resume after a worker restart)
	default:
		http.Error(w, "campaign cannot be sent in status "+string(c.Status), http.StatusConflict)
		return
	}

	if err := h.Bus.PublishSendCommand(r.Context(), id); err != nil {
		h.Log.Error().Err(err).Int("campaign_id", id).Msg("publish send command failed")
		http.Error(w, "failed to queue campaign send", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"campaign_id": id,
		"status":      "queued",
	})
}

// PauseSend stops the campaign's dispatching before its next batch. The
// transition is the same compare-and-swap the workers observe, so no
// command round-trip is needed.
func (h *CampaignHandler) PauseSend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	applied, err := h.Campaigns.TransitionStatus(r.Context(), id,
		[]model.CampaignStatus{model.CampaignSending}, model.CampaignPaused)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !applied {
		http.Error(w, "campaign is not sending", http.StatusConflict)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"campaign_id": id,
		"status":      string(model.CampaignPaused),
	})
}

// GetCampaign returns the campaign with its job-level dispatch stats.
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := h.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	stats, err := h.Jobs.Stats(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"campaign":  c,
		"job_stats": stats,
	})
}

// PreviewCampaign renders the campaign against sample values: campaign
// variables where set, each variable's preview default otherwise. No
// contact data is involved, so this is safe on drafts.
func (h *CampaignHandler) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	c, err := h.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	vars := template.Extract(c.Subject + " " + c.BodyHTML)
	values := template.SampleValues(vars)
	for k, v := range c.Variables {
		if v != "" {
			values[k] = v
		}
	}

	json.NewEncoder(w).Encode(map[string]any{
		"subject":   template.Render(c.Subject, values),
		"body_html": template.Render(c.BodyHTML, values),
		"variables": vars,
	})
}

// ListSuppressions returns the do-not-send list, newest first.
func (h *CampaignHandler) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.Suppressions.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Suppression{}
	}
	json.NewEncoder(w).Encode(map[string]any{"suppressions": entries})
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.Log.Error().Err(err).Msg("campaign handler error")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
