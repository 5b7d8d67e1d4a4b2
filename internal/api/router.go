package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/api/handlers"
	mw "github.com/praxislabs/tenet/internal/api/middleware"
	"github.com/praxislabs/tenet/internal/buildconfig"
	"github.com/praxislabs/tenet/internal/config"
	"github.com/praxislabs/tenet/internal/domain"
	"github.com/praxislabs/tenet/internal/embedding"
	"github.com/praxislabs/tenet/internal/llm"
	"github.com/praxislabs/tenet/internal/service"
	"github.com/praxislabs/tenet/internal/store"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router  *chi.Mux
	Dedupe  *service.DedupeService
	Distill *service.DistillService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	principleStore := store.NewPrincipleStore(db)
	traceStore := store.NewTraceStore(db)
	usageStore := store.NewUsageStore(db)

	// External clients via provider factory
	var embeddingClient domain.EmbeddingClient
	var analyzer domain.TraceAnalyzer

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
	} else {
		logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	analyzer, err = llm.NewAnalyzer(config.AnalyzerProvider(), config.AnalyzerAPIKey())
	if err != nil {
		logger.Warn("analyzer initialization failed",
			zap.String("provider", config.AnalyzerProvider()), zap.Error(err))
		analyzer = llm.NewMockAnalyzer()
	} else {
		logger.Info("analyzer initialized", zap.String("provider", config.AnalyzerProvider()))
	}

	// Services
	scoringSvc := service.NewScoringService(principleStore, logger)
	ranker := service.NewRanker(logger)
	dedupeSvc := service.NewDedupeService(principleStore, embeddingClient, logger)
	dedupeSvc.Threshold = config.SimilarityThreshold()
	dedupeSvc.MaxExamples = config.MaxExamplesPerPrinciple()
	dedupeSvc.SetInterval(config.DedupeInterval())
	creditSvc := service.NewCreditService(usageStore, logger)
	retrievalSvc := service.NewRetrievalService(principleStore, traceStore, usageStore, scoringSvc, ranker, embeddingClient, logger)
	distillSvc := service.NewDistillService(traceStore, dedupeSvc, analyzer, logger)
	distillSvc.Threshold = config.DistillThreshold()

	// Handlers
	principleHandler := handlers.NewPrincipleHandler(principleStore, usageStore)
	traceHandler := handlers.NewTraceHandler(traceStore, distillSvc)
	learningHandler := handlers.NewLearningHandler(retrievalSvc, creditSvc, scoringSvc)
	retrieveHandler := handlers.NewRetrieveHandler(retrievalSvc, dedupeSvc, distillSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Dedupe:    dedupeSvc,
		Distill:   distillSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/principles", func(r chi.Router) {
			r.Get("/", principleHandler.List)
			r.Post("/", principleHandler.Create)
			r.Post("/search", principleHandler.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", principleHandler.GetByID)
				r.Put("/", principleHandler.Update)
				r.Delete("/", principleHandler.Delete)
				r.Get("/usage", principleHandler.UsageHistory)
			})
		})

		r.Route("/traces", func(r chi.Router) {
			r.Post("/", traceHandler.Create)
			r.Post("/search", traceHandler.Search)
			r.Get("/{id}", traceHandler.GetByID)
		})

		r.Post("/retrieve", retrieveHandler.Retrieve)
		r.Post("/usage", learningHandler.RecordUsage)
		r.Post("/credit", learningHandler.AssignCredit)
		r.Get("/scores", learningHandler.Scores)
		r.Get("/scores/distribution", learningHandler.ScoreDistribution)
		r.Post("/prune", learningHandler.Prune)
		r.Post("/dedupe/run", retrieveHandler.RunDedupe)
		r.Post("/distill/run", retrieveHandler.RunDistill)
	})

	return app
}

// NewRouter returns just the chi.Mux.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.PrincipleStore = (*store.PrincipleStore)(nil)
	_ domain.TraceStore     = (*store.TraceStore)(nil)
	_ domain.UsageStore     = (*store.UsageStore)(nil)
)
