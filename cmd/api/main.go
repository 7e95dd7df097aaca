package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/halcyonsec/certgate/internal/handlers"
	"github.com/halcyonsec/certgate/internal/mailer"
	"github.com/halcyonsec/certgate/internal/repository"
	"github.com/halcyonsec/certgate/internal/service"
	"github.com/halcyonsec/certgate/pkg/config"
	"github.com/halcyonsec/certgate/pkg/database"
	"github.com/halcyonsec/certgate/pkg/events"
	"github.com/halcyonsec/certgate/pkg/logger"
	mw "github.com/halcyonsec/certgate/pkg/middleware"
)

func main() {
	cfg := config.Load()

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to Redis (rate limiting)
	redisClient, err := repository.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Connect to event bus
	var publisher events.Publisher
	publisher, err = events.NewNATSPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("NATS unavailable, events disabled", "error", err)
		publisher = events.NoopPublisher{}
	}
	defer publisher.Close()

	// Initialize repositories
	seminarRepo := repository.NewSeminarRepository(pool)
	challengeRepo := repository.NewChallengeRepository(pool)
	registrationRepo := repository.NewRegistrationRepository(pool)
	certificateRepo := repository.NewCertificateRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	// Initialize mailer
	mailService := selectMailer(cfg)

	// Initialize services
	verifyService := service.NewVerificationService(
		seminarRepo, challengeRepo, registrationRepo, certificateRepo,
		mailService, publisher, cfg,
	)

	// Initialize handlers
	h := handlers.New(verifyService, seminarRepo, certificateRepo, challengeRepo, rateLimitRepo, publisher, cfg)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("certgate"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/", func(r chi.Router) {
		// Certificate access verification
		r.Group(func(r chi.Router) {
			r.Use(h.AccessRateLimit())
			r.Post("/access/request", h.RequestChallenge)
		})
		r.Post("/access/verify", h.VerifyChallenge)
		r.Get("/access/magic", h.VerifyMagicLink)

		// Public reads
		r.Get("/seminars/{seminarID}", h.GetSeminar)
		r.Get("/certificates/{certificateID}", h.GetCertificate)

		// Admin routes (require admin JWT)
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireJWT("admin"))
			r.Post("/maintenance/cleanup", h.CleanupChallenges)
			r.Get("/challenges/{seminarID}", h.ChallengeStats)
		})
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down certgate service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Certgate service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting certgate service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Certgate service error", "error", err)
		os.Exit(1)
	}
}

func selectMailer(cfg *config.Config) mailer.Service {
	if cfg.Email.DevMode {
		return mailer.NewDevMailer()
	}
	if cfg.Email.MailerSendKey != "" {
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom, cfg.Verify.MailSendTimeout)
	}
	return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
}
