package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rxguard/audit-api/internal/adapter/llm"
	"github.com/rxguard/audit-api/internal/adapter/openfda"
	"github.com/rxguard/audit-api/internal/adapter/rxnorm"
	"github.com/rxguard/audit-api/internal/config"
	healthHandler "github.com/rxguard/audit-api/internal/handler/health"
	patientHandler "github.com/rxguard/audit-api/internal/handler/patient"
	sessionHandler "github.com/rxguard/audit-api/internal/handler/session"
	"github.com/rxguard/audit-api/internal/middleware"
	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository/postgres"
	"github.com/rxguard/audit-api/internal/router"
	auditService "github.com/rxguard/audit-api/internal/service/audit"
	extractService "github.com/rxguard/audit-api/internal/service/extract"
	intentService "github.com/rxguard/audit-api/internal/service/intent"
	"github.com/rxguard/audit-api/internal/service/safety"
	snapshotService "github.com/rxguard/audit-api/internal/service/snapshot"
	"github.com/rxguard/audit-api/internal/workflow"
	"github.com/rxguard/audit-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	patientRepo := postgres.NewPatientRepository(base)
	auditRepo := postgres.NewAuditRepository(base)

	m := metrics.NewMetrics("rxguard", "audit")

	fdaClient := openfda.NewClient(openfda.Config{
		BaseURL:  cfg.OpenFDA.BaseURL,
		APIKey:   cfg.OpenFDA.APIKey,
		Timeout:  time.Duration(cfg.OpenFDA.TimeoutSeconds) * time.Second,
		CacheTTL: time.Duration(cfg.OpenFDA.CacheTTLMin) * time.Minute,
	}, m)

	rxClient := rxnorm.NewClient(rxnorm.Config{
		BaseURL:  cfg.RxNorm.BaseURL,
		Timeout:  time.Duration(cfg.RxNorm.TimeoutSeconds) * time.Second,
		CacheTTL: time.Duration(cfg.RxNorm.CacheTTLMin) * time.Minute,
	}, m)

	llmClient := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})

	intentSvc := intentService.NewRouter(llmClient)
	extractSvc := extractService.NewService(llmClient)
	snapshotSvc := snapshotService.NewService(patientRepo)
	engine := safety.NewEngine(fdaClient, fdaClient, rxClient, m)
	auditSvc := auditService.NewService(auditRepo)

	// Checkpoints go to Redis so suspended runs survive restarts; the
	// in-memory store is the degraded mode when Redis is unreachable.
	var store workflow.Store
	redisStore, err := workflow.NewRedisStore(workflow.RedisConfig{
		URL:          cfg.Redis.URL,
		TTL:          time.Duration(cfg.Workflow.CheckpointTTLHours) * time.Hour,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-memory checkpoint store")
		store = workflow.NewMemoryStore()
	} else {
		store = redisStore
		defer redisStore.Close()
	}

	machine := workflow.NewMachine(workflow.Deps{
		Store:     store,
		Router:    intentSvc,
		Extractor: extractSvc,
		Snapshots: snapshotSvc,
		Engine:    engine,
		Verdict: func(flags []model.SafetyFlag, confidence float64) *model.SafetyVerdict {
			return safety.AggregateWithMetrics(flags, confidence, m)
		},
		Knowledge: fdaClient,
		Dialogue:  llmClient,
		Auditor:   auditSvc,
		Metrics:   m,
	})

	sessionH := sessionHandler.NewHandler(machine, auditSvc)
	patientH := patientHandler.NewHandler(patientRepo)
	healthH := healthHandler.NewHandler(db)

	r := router.NewRouter(sessionH, patientH, healthH, router.Config{
		RateLimit:     rate.Limit(cfg.Server.RateLimit),
		RateBurst:     cfg.Server.RateBurst,
		CORSConfig:    middleware.DefaultCORSConfig(),
		MetricsPrefix: "rxguard_http",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
