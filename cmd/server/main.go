package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/brightpost/campaign-engine/internal/config"
	"github.com/brightpost/campaign-engine/internal/db"
	"github.com/brightpost/campaign-engine/internal/handler"
	"github.com/brightpost/campaign-engine/internal/logging"
	"github.com/brightpost/campaign-engine/internal/queue"
	"github.com/brightpost/campaign-engine/internal/repository"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "server")
		bootLog.Fatal().Err(err).Msg("load config failed")
	}
	log := logging.New(cfg.LogLevel, "server")

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()
	if err := db.Migrate(conn, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	bus, err := queue.Dial(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("AMQP connection failed")
	}
	defer bus.Close()

	h := &handler.CampaignHandler{
		Campaigns:    &repository.CampaignRepository{DB: conn},
		Jobs:         &repository.JobRepository{DB: conn},
		Bus:          bus,
		Suppressions: &repository.SuppressionRepository{DB: conn},
		Log:          log,
	}

	r := chi.NewRouter()
	r.Post("/campaigns/{id}/send", h.StartSend)
	r.Post("/campaigns/{id}/pause", h.PauseSend)
	r.Get("/campaigns/{id}", h.GetCampaign)
	r.Get("/campaigns/{id}/preview", h.PreviewCampaign)
	r.Get("/suppressions", h.ListSuppressions)

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
