package main

import (
	"context"
	"net"
	"net/smtp"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/brightpost/campaign-engine/internal/config"
	"github.com/brightpost/campaign-engine/internal/db"
	"github.com/brightpost/campaign-engine/internal/engine"
	"github.com/brightpost/campaign-engine/internal/logging"
	"github.com/brightpost/campaign-engine/internal/queue"
	"github.com/brightpost/campaign-engine/internal/repository"
	"github.com/brightpost/campaign-engine/internal/transport"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", "worker")
		bootLog.Fatal().Err(err).Msg("load config failed")
	}
	log := logging.New(cfg.LogLevel, "worker")

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

	campaigns := &repository.CampaignRepository{DB: conn}
	jobs := &repository.JobRepository{DB: conn}
	contacts := &repository.ContactRepository{DB: conn}
	suppressions := &repository.SuppressionRepository{DB: conn}

	var sender transport.Sender = &transport.MockSender{}
	if cfg.SMTPAddr != "" {
		var auth smtp.Auth
		if cfg.SMTPUsername != "" {
			host, _, _ := net.SplitHostPort(cfg.SMTPAddr)
			auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, host)
		}
		sender = &transport.SMTPSender{Addr: cfg.SMTPAddr, Auth: auth}
	}

	eng := engine.New(engine.Config{
		Workers:         cfg.Workers,
		BatchSize:       cfg.BatchSize,
		EmailRateLimit:  cfg.EmailRateLimit,
		BatchDelay:      cfg.BatchDelay,
		SendTimeout:     cfg.SendTimeout,
		MaxRetries:      cfg.MaxRetries,
		Backoff:         engine.Backoff{Base: cfg.RetryBackoffBase, Cap: cfg.RetryBackoffCap},
		StaleClaimAfter: cfg.StaleClaimAfter,
	}, jobs, campaigns, contacts, suppressions, sender, bus, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Campaigns left in `sending` by a previous process pick up where they
	// stopped; the sweeper requeues their abandoned jobs.
	if err := eng.ResumeActive(ctx); err != nil {
		log.Error().Err(err).Msg("resume active campaigns failed")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bus.ConsumeSendCommands(ctx, eng.StartCampaignSend)
	})

	g.Go(func() error {
		eng.RunSweeper(ctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		c := cron.New()
		c.AddFunc("@every 1m", func() {
			ids, err := campaigns.DueScheduledIDs(ctx, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("scheduled campaign scan failed")
				return
			}
			for _, id := range ids {
				log.Info().Int("campaign_id", id).Msg("scheduled campaign due")
				if err := eng.StartCampaignSend(ctx, id); err != nil {
					log.Error().Err(err).Int("campaign_id", id).Msg("scheduled send start failed")
				}
			}
		})
		c.Start()
		<-ctx.Done()
		c.Stop()
		return nil
	})

	log.Info().Int("workers", cfg.Workers).Int("rate_limit_per_min", cfg.EmailRateLimit).Msg("dispatcher running")

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("dispatcher stopped with error")
	}
	// Let in-flight run loops finish recording outcomes.
	eng.Wait()
	log.Info().Msg("dispatcher stopped")
}
