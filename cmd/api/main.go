// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/rail-support-bot/internal/app"
	"github.com/capitalize-ai/rail-support-bot/internal/config"
	"github.com/capitalize-ai/rail-support-bot/internal/dialog"
	"github.com/capitalize-ai/rail-support-bot/internal/handler"
	"github.com/capitalize-ai/rail-support-bot/internal/middleware"
	natsclient "github.com/capitalize-ai/rail-support-bot/internal/nats"
	"github.com/capitalize-ai/rail-support-bot/internal/outbox"
	"github.com/capitalize-ai/rail-support-bot/internal/service"
	"github.com/capitalize-ai/rail-support-bot/internal/telegram"
	"github.com/capitalize-ai/rail-support-bot/internal/wazzup"
	"github.com/capitalize-ai/rail-support-bot/pkg/logger"
	"github.com/capitalize-ai/rail-support-bot/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "rail-support-bot", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Storage
	st, records, err := app.OpenStores(cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer st.Close()

	analyzer, err := app.NewAnalyzer(cfg)
	if err != nil {
		log.Fatal("failed to build analyzer", zap.Error(err))
	}

	checks := map[string]handler.Check{
		"sqlite": records.Ping,
	}

	// Optional event stream
	var (
		events     service.EventPublisher
		ticketFeed handler.TicketFeed
	)
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = streamManager
		ticketFeed = streamManager
		checks["nats"] = natsClient.Ping
	}

	// Conversation engine and chat service
	engine := dialog.NewEngine(st, analyzer, log)
	chat := service.NewChatService(engine, st, events, app.ChatConfig(cfg), log)

	var wg sync.WaitGroup

	// Outbound delivery
	if cfg.WazzupAPIKey != "" {
		sender := wazzup.NewClient(cfg.WazzupAPIKey, cfg.WazzupAPIURL)
		worker := outbox.NewWorker(st, sender, cfg.OutboxMaxAttempts, cfg.OutboxPollInterval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	} else if cfg.BotSendEnabled || cfg.OpsChatID != "" {
		log.Warn("WAZZUP_API_KEY not set, outbound messages stay queued")
	}

	// Telegram channel
	if cfg.TelegramToken != "" {
		tg, err := telegram.New(cfg.TelegramToken, chat, log)
		if err != nil {
			log.Fatal("failed to start telegram", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Run(ctx)
		}()
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(checks)
	webhookHandler := handler.NewWebhookHandler(chat, log)
	sessionHandler := handler.NewSessionHandler(st, st, ticketFeed, log)
	caseHandler := handler.NewCaseHandler(st, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Chat provider webhooks
	r.Group(func(r chi.Router) {
		r.Use(middleware.WebhookToken(cfg.WebhookToken))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/webhook/wazzup", webhookHandler.Receive)
		r.Post("/webhooks", webhookHandler.Receive)
	})

	// Ops API with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS())
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeOps))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/cases", caseHandler.List)
		r.Get("/cases/{ticketId}", caseHandler.Get)

		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Reset)
			r.Get("/tickets", sessionHandler.Tickets)
			r.Get("/stream", sessionHandler.Stream)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	log.Info("server stopped")
}
