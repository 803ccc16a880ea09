package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/billfeed/internal/api/handlers"
	"github.com/dvloznov/billfeed/internal/api/middleware"
	"github.com/dvloznov/billfeed/internal/app"
	"github.com/dvloznov/billfeed/internal/config"
	"github.com/dvloznov/billfeed/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "billfeed.yaml", "Path to configuration file")
	)
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("Config not loaded, using defaults")
		cfg = config.Default()
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble pipeline")
	}
	defer a.Close()

	// Start queue workers and the dedup window sweeper in background
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	a.Engine.StartSweeper(workerCtx, time.Duration(cfg.Pipeline.DedupWindow))

	go func() {
		log.Info().Int("workers", cfg.Queue.Workers).Msg("Starting ingest workers")
		if err := a.Queue.Start(workerCtx, a.Pipeline.HandleJob); err != nil {
			log.Error().Err(err).Msg("Ingest workers stopped with error")
		}
	}()

	if a.Syncer != nil {
		go a.Syncer.Run(workerCtx, time.Minute)
	}

	// Initialize handlers
	eventsHandler := handlers.NewEventsHandler(a.Pipeline, a.Queue, log)
	billsHandler := handlers.NewBillsHandler(a.Store, a.Control, log)
	jobsHandler := handlers.NewJobsHandler(a.JobStore, log)

	// Create router
	mux := http.NewServeMux()

	// Events endpoints
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			eventsHandler.SubmitEvent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/events/async", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			eventsHandler.EnqueueEvent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/events/replay", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			eventsHandler.ReplayEvent(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Bills endpoints
	mux.HandleFunc("/api/bills", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			billsHandler.ListBills(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/bills/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/bills/")
		idStr, action, _ := strings.Cut(rest, "/")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid bill ID")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			billsHandler.GetBill(w, r, id)
		case action == "confirm" && r.Method == http.MethodPost:
			billsHandler.ConfirmBill(w, r, id)
		case action == "sync" && r.Method == http.MethodPost:
			billsHandler.SyncBill(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
