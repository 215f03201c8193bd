package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rifas-api/internal/application/auth"
	"github.com/rifas-api/internal/application/availability"
	"github.com/rifas-api/internal/application/export"
	"github.com/rifas-api/internal/application/link"
	"github.com/rifas-api/internal/application/notification"
	"github.com/rifas-api/internal/application/raffle"
	"github.com/rifas-api/internal/application/reservation"
	"github.com/rifas-api/internal/config"
	"github.com/rifas-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/rifas-api/internal/infrastructure/jwt"
	"github.com/rifas-api/internal/infrastructure/memory"
	redisinfra "github.com/rifas-api/internal/infrastructure/redis"
	s3infra "github.com/rifas-api/internal/infrastructure/s3"
	"github.com/rifas-api/internal/infrastructure/smtp"
	"github.com/rifas-api/internal/infrastructure/sns"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/metrics"
	transporthttp "github.com/rifas-api/internal/transport/http"
	appmiddleware "github.com/rifas-api/internal/transport/http/middleware"
)

type participantRepo interface {
	raffle.ParticipantStore
	reservation.ParticipantStore
}

type linkRepo interface {
	link.Store
	raffle.LinkStore
}

// repos is the Remote Store Adapter selected by STORE_DRIVER.
type repos struct {
	raffles       raffle.RaffleStore
	participants  participantRepo
	links         linkRepo
	notifications notification.Store
	pinger        availability.Pinger
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{
		ServiceName: "rifas-api",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if envErr != nil {
		log.Info(ctx, "no .env file found, reading from environment")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRaffle(reg)

	store, err := openRepos(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "open store", err)
		os.Exit(1)
	}

	tracker := availability.NewTracker(cfg.StoreConfigured(), cfg.StoreEndpoint(), store.pinger, log, m)
	tracker.Probe(ctx)
	go tracker.Run(ctx, cfg.AvailabilityPollInterval)

	// JWT provider (optional: admin routes answer 503 without keys).
	var verifier appmiddleware.TokenVerifier
	var signer auth.TokenSigner
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		verifier, signer = p, p
	} else {
		log.Warn(ctx, "jwt provider not available", err)
	}

	notes := notification.NewService(store.notifications, tracker, openAlerts(ctx, cfg, log), log, m)
	reservations := reservation.NewService(store.raffles, store.participants, tracker, notes, cfg.MaxNumbersPerSession, log, m)

	deps := &transporthttp.Deps{
		Raffles:       raffle.NewService(store.raffles, store.participants, store.links, openCache(ctx, cfg, log), tracker, nil, log),
		Reservations:  reservations,
		Links:         link.NewService(store.links, store.raffles, store.participants, reservations, tracker, cfg.PublicBaseURL, cfg.LinkClaimTTL, log, m),
		Notifications: notes,
		Exports:       export.NewService(store.raffles, store.participants, openObjects(ctx, cfg, log), tracker, saoPaulo(ctx, log)),
		Auth:          auth.NewService(cfg.AdminUsername, cfg.AdminPasswordHash, signer),
		Status:        tracker,
		Verifier:      verifier,
		Logger:        log,
		Gatherer:      reg,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info(log.WithFields(ctx, map[string]any{"port": cfg.AppPort, "env": cfg.AppEnv, "store": cfg.StoreDriver}), "server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", err)
			stop()
		}
	}()

	<-ctx.Done()

	log.Info(context.Background(), "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "forced shutdown", err)
		os.Exit(1)
	}
	log.Info(shutdownCtx, "server stopped")
}

func openRepos(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repos, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		// Creates tables that don't exist yet (LocalStack and first deploys).
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables, log)
		return &repos{
			raffles:       dynamo.NewRaffleRepo(client, cfg.DynamoTables.Raffles),
			participants:  dynamo.NewParticipantRepo(client, cfg.DynamoTables.Participants),
			links:         dynamo.NewLinkRepo(client, cfg.DynamoTables.Links),
			notifications: dynamo.NewNotificationRepo(client, cfg.DynamoTables.Notifications),
			pinger:        dynamo.NewPinger(client, cfg.DynamoTables.Raffles),
		}, nil
	case config.StoreDriverMemory:
		return memoryRepos(memory.NewStore(), true), nil
	case config.StoreDriverNone:
		// No backend: every store call reports unavailable and the tracker stays not ready.
		s := memory.NewStore()
		s.SetUnavailable(true)
		return memoryRepos(s, false), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func memoryRepos(s *memory.Store, ping bool) *repos {
	r := &repos{
		raffles:       s.Raffles(),
		participants:  s.Participants(),
		links:         s.Links(),
		notifications: s.Notifications(),
	}
	if ping {
		r.pinger = s
	}
	return r
}

// openCache prefers redis for the admin raffle cache and falls back to process memory.
func openCache(ctx context.Context, cfg *config.Config, log *logger.Logger) raffle.Cache {
	if cfg.RedisURL == "" {
		return memory.NewRaffleCache()
	}
	client, err := redisinfra.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn(ctx, "redis not available, caching raffles in memory", err)
		return memory.NewRaffleCache()
	}
	return redisinfra.NewRaffleCache(client, cfg.RaffleCacheTTL)
}

// openObjects returns nil when S3 can't be configured; exports then download only.
func openObjects(ctx context.Context, cfg *config.Config, log *logger.Logger) export.ObjectStore {
	if cfg.StoreDriver != config.StoreDriverDynamo || cfg.S3BucketName == "" {
		return nil
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		log.Warn(ctx, "s3 not available, csv archive disabled", err)
		return nil
	}
	return s3infra.NewStore(client, cfg.S3BucketName)
}

func openAlerts(ctx context.Context, cfg *config.Config, log *logger.Logger) notification.Alerts {
	alerts := notification.Alerts{Phone: cfg.AdminAlertPhone, Email: cfg.AdminAlertEmail}
	if cfg.AdminAlertPhone != "" {
		if sender, err := sns.NewSender(ctx, cfg); err == nil {
			alerts.SMS = sender
		} else {
			log.Warn(ctx, "sns sender not available", err)
		}
	}
	if cfg.AdminAlertEmail != "" {
		alerts.Mail = smtp.NewMailer(cfg)
	}
	return alerts
}

// saoPaulo is the zone reservation dates are rendered in for CSV exports.
func saoPaulo(ctx context.Context, log *logger.Logger) *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		log.Warn(ctx, "timezone database missing, exporting in UTC", err)
		return time.UTC
	}
	return loc
}
