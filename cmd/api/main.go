package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/visitdesk/internal/badge"
	"github.com/meridianhq/visitdesk/internal/http/handlers"
	imw "github.com/meridianhq/visitdesk/internal/http/middleware"
	"github.com/meridianhq/visitdesk/internal/platform/mailer"
	"github.com/meridianhq/visitdesk/internal/printer"
	"github.com/meridianhq/visitdesk/internal/printqueue"
	"github.com/meridianhq/visitdesk/internal/ratelimit"
	"github.com/meridianhq/visitdesk/internal/repo/postgres"
	"github.com/meridianhq/visitdesk/internal/search"
	"github.com/meridianhq/visitdesk/internal/service"
	"github.com/meridianhq/visitdesk/pkg/config"
	"github.com/meridianhq/visitdesk/pkg/database"
	"github.com/meridianhq/visitdesk/pkg/events"
	"github.com/meridianhq/visitdesk/pkg/logger"
	mw "github.com/meridianhq/visitdesk/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres is the system of record; without it there is nothing to serve.
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Redis backs the search projection and kiosk rate limiting; both are
	// best-effort, so a bad URL is a warning, not a fatal condition.
	var indexer search.Indexer
	var limiter ratelimit.Limiter
	if opts, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		logger.Warn("Invalid REDIS_URL, search index and kiosk rate limiting disabled", "error", err)
	} else {
		rdb := redis.NewClient(opts)
		indexer = search.NewRedisIndexer(rdb)
		limiter = ratelimit.NewRedisLimiter(rdb)
	}

	// Repositories
	visitsRepo := postgres.NewVisitsRepo(pool)
	visitorsRepo := postgres.NewVisitorsRepo(pool)
	usersRepo := postgres.NewUsersRepo(pool)
	jobsRepo := postgres.NewPrintJobsRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	// Mailer: MailerSend in production, SMTP for staging, log-only in dev.
	var mail mailer.Service
	switch {
	case cfg.Email.DevMode:
		mail = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mail = mailer.NewMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		mail = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom,
			cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}

	issuer := badge.NewIssuer(cfg.Badge)

	visitService := service.NewVisitService(
		visitsRepo, visitorsRepo, usersRepo, jobsRepo, auditRepo,
		issuer, indexer, eventBus, mail,
	)
	authService := service.NewAuthService(usersRepo, cfg)

	// Printer: absence is a warning. Jobs accumulate pending until one is up.
	drv, err := printer.New(cfg.Printer)
	if err != nil {
		if errors.Is(err, printer.ErrNotConfigured) {
			logger.Warn("No printer configured, badge print jobs will stay pending")
		} else {
			logger.Warn("Printer initialization failed, badge print jobs will stay pending", "error", err)
		}
		drv = nil
	}

	worker := printqueue.NewWorker(jobsRepo, visitsRepo, drv, eventBus, cfg.Queue, cfg.Printer.PrintTimeout)
	if err := worker.WakeOnEnqueue(eventBus); err != nil {
		logger.Warn("Print worker wakeup subscription failed, relying on poll interval", "error", err)
	}
	go worker.Run(ctx)

	// Handlers
	visitsHandler := handlers.NewVisitsHandler(visitService)
	visitorsHandler := handlers.NewVisitorsHandler(visitorsRepo)
	kioskHandler := handlers.NewKioskHandler(visitService, limiter, cfg.Kiosk)
	printHandler := handlers.NewPrintJobsHandler(jobsRepo)
	authHandler := handlers.NewAuthHandler(authService)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visitdesk"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes())

		r.Group(func(r chi.Router) {
			r.Use(imw.RequireJWT(cfg.Auth.JWTSecret))
			r.Mount("/visits", visitsHandler.Routes())
			r.Mount("/visitors", visitorsHandler.Routes())
			r.Mount("/printer", printHandler.Routes())
		})
	})

	// Kiosk routes are deliberately unauthenticated; the PIN and badge are
	// the credentials.
	r.Mount("/kiosk", kioskHandler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down visitdesk...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting visitdesk", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
