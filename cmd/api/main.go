// Package main is the entry point for the API server.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/neighborhood-advisor/internal/config"
	"github.com/capitalize-ai/neighborhood-advisor/internal/handler"
	"github.com/capitalize-ai/neighborhood-advisor/internal/llm"
	"github.com/capitalize-ai/neighborhood-advisor/internal/middleware"
	natsclient "github.com/capitalize-ai/neighborhood-advisor/internal/nats"
	"github.com/capitalize-ai/neighborhood-advisor/internal/poller"
	"github.com/capitalize-ai/neighborhood-advisor/internal/relay"
	"github.com/capitalize-ai/neighborhood-advisor/internal/service"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/tracing"
)

const serviceName = "neighborhood-advisor"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel,
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithSampling(100, 100),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// The event stream is optional; without NATS events are dropped.
	var (
		events service.EventPublisher = service.NopPublisher{}
		broker handler.ConnectionChecker
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     serviceName,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		stream := natsclient.NewEventStream(natsClient)
		if err := stream.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		events = stream
		broker = natsClient
	}

	transport, err := llm.NewOpenAIClient(llm.Config{
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		AssistantID:     cfg.OpenAIAssistantID,
		ChatModel:       cfg.OpenAIChatModel,
		ResponseTimeout: cfg.OpenAIResponseTimeout,
		SystemPrompt:    service.ChatSystemPrompt,
	})
	if err != nil {
		log.Fatal("failed to create OpenAI client", zap.Error(err))
	}

	recommendationSvc := service.NewRecommendationService(
		transport,
		poller.New(transport, log),
		cfg.PollOptions(),
		events,
		log,
	)
	chatSvc := service.NewChatService(transport, relay.New(), cfg.ChatHistoryLimit, events, log)

	healthHandler := handler.NewHealthHandler(broker)
	threadHandler := handler.NewThreadHandler(recommendationSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret))
		} else {
			log.Warn("JWT_SECRET not set, API authentication disabled")
		}
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/create-thread", threadHandler.CreateThread)
		r.Post("/submit-preferences", threadHandler.SubmitPreferences)
		r.Get("/get-response", threadHandler.GetResponse)
		r.Get("/check-status", threadHandler.CheckStatus)
		r.Post("/chat", chatHandler.Chat)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
