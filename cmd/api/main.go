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

	"go.uber.org/zap"

	"github.com/capitalize-ai/calendar-agent/internal/activity"
	"github.com/capitalize-ai/calendar-agent/internal/calendar"
	"github.com/capitalize-ai/calendar-agent/internal/config"
	"github.com/capitalize-ai/calendar-agent/internal/handler"
	"github.com/capitalize-ai/calendar-agent/internal/llm"
	natsclient "github.com/capitalize-ai/calendar-agent/internal/nats"
	"github.com/capitalize-ai/calendar-agent/internal/planner"
	"github.com/capitalize-ai/calendar-agent/internal/service"
	"github.com/capitalize-ai/calendar-agent/pkg/logger"
	"github.com/capitalize-ai/calendar-agent/pkg/tracing"
)

const serviceName = "calendar-agent"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var log *logger.Logger
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("env", cfg.Environment))

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Activity log: JetStream when NATS is configured, memory otherwise
	var (
		activityLog activity.Log
		natsClient  *natsclient.Client
		stream      *natsclient.ActivityStream
	)
	natsCfg := natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}
	if natsCfg.Enabled() {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, err = natsclient.Connect(connectCtx, natsCfg, log)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		stream = natsclient.NewActivityStream(natsClient, cfg.ActivityRetention)
		if err := stream.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		activityLog = stream
	} else {
		log.Info("NATS_URL not set, keeping activity in memory")
		activityLog = activity.NewMemory()
	}

	// Initialize LLM client; without one every proposal request reports the
	// missing configuration
	var llmClient llm.Client
	if key := cfg.AIKey(); key != "" {
		c, err := llm.NewClient(llm.Provider(cfg.AIProvider), key)
		if err != nil {
			log.Warn("failed to create LLM client, proposals disabled",
				zap.String("provider", cfg.AIProvider), zap.Error(err))
		} else {
			llmClient = c
		}
	} else {
		log.Warn("no API key for AI provider, proposals disabled", zap.String("provider", cfg.AIProvider))
	}

	var plannerOpts []planner.Option
	if cfg.AIModel != "" {
		plannerOpts = append(plannerOpts, planner.WithModel(cfg.AIModel))
	}
	plannerOpts = append(plannerOpts, planner.WithTimeout(cfg.AITimeout))
	aiPlanner := planner.New(llmClient, log, plannerOpts...)

	// Calendar commit sink
	sink := calendar.NewClient(cfg.AppsScriptURL, nil, cfg.CommitTimeout, log)
	if !sink.Configured() {
		log.Warn("APPS_SCRIPT_URL not set, commits will fail until configured")
	}

	// Initialize services
	sessionSvc := service.NewSessionService(activityLog, sink, service.SessionOptions{
		RestoreOnFailure: cfg.RestoreOnCommitFailure,
		IdleTTL:          cfg.SessionIdleTTL,
		CommitTimeout:    cfg.CommitTimeout,
	}, log)
	proposalSvc := service.NewProposalService(sessionSvc, aiPlanner, log)

	var jobs []func()
	if stream != nil {
		jobs = append(jobs, func() {
			reportCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := stream.ReportMetrics(reportCtx); err != nil {
				log.Warn("failed to report stream metrics", zap.Error(err))
			}
		})
	}
	sweeper, err := sessionSvc.StartSweeper(cfg.SessionSweepSchedule, jobs...)
	if err != nil {
		log.Fatal("failed to start session sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Create router
	r := handler.NewRouter(handler.RouterConfig{
		Sessions:  sessionSvc,
		Proposals: proposalSvc,
		NATS:      natsClient,
		Checks: map[string]func() bool{
			"ai":       aiPlanner.Configured,
			"calendar": sink.Configured,
		},
		Logger:            log,
		JWTSecret:         cfg.JWTSecret,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
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
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
