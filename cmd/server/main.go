package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/examsync/core/internal/auth"
	"github.com/examsync/core/internal/config"
	"github.com/examsync/core/internal/db"
	"github.com/examsync/core/internal/extraction"
	"github.com/examsync/core/internal/handler"
	"github.com/examsync/core/internal/lms"
	examMiddleware "github.com/examsync/core/internal/middleware"
	"github.com/examsync/core/internal/model"
	"github.com/examsync/core/internal/notify"
	"github.com/examsync/core/internal/orchestrator"
	"github.com/examsync/core/internal/repository"
	"github.com/examsync/core/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.StartupChecks(ctx, pool); err != nil {
		slog.Error("startup checks failed", "error", err)
		os.Exit(1)
	}

	if err := db.RunCrashGuard(ctx, pool, cfg.StaleSubmittingMinutes); err != nil {
		slog.Error("crash guard failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	artifactRepo := repository.NewArtifactRepository(pool)
	mappingRepo := repository.NewSubjectMappingRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	usernameRepo := repository.NewUsernameRegisterRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	queueRepo := repository.NewQueueRepository(pool)

	// Auth
	staffAuth := auth.NewStaffAuth(cfg.SecretKey, cfg.AccessTokenExpiry(), cfg.BcryptCost)
	tokenCipher, err := auth.NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		slog.Error("failed to init token cipher", "error", err)
		os.Exit(1)
	}

	// External collaborators
	lmsClient := lms.New(cfg.MoodleBaseURL, cfg.LMSCallTimeout())
	studentAuth := auth.NewStudentAuth(lmsClient, sessionRepo, tokenCipher, "examsync", cfg.SessionExpiry())
	store := storage.New(cfg.UploadDir)
	extractionClient := extraction.New(cfg.HFSpaceURL, cfg.ExtractionTimeout(), cfg.ExtractionConfidence)
	notifier := notify.NewMailNotifier(cfg.SendgridAPIKey, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)

	// Orchestration (C7)
	orch := orchestrator.New(
		artifactRepo, mappingRepo, usernameRepo, sessionRepo, queueRepo, auditRepo,
		store, lmsClient, studentAuth, notifier,
		cfg.RetryMaxAttempts, cfg.StaffNotifyTo,
	)
	retryWorker := orchestrator.NewRetryWorker(orch, queueRepo, sessionRepo, cfg.RetryInterval(), cfg.RetryMaxAttempts)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go retryWorker.Run(workerCtx)

	// Handlers
	authHandler := handler.NewAuthHandler(staffAuth, studentAuth, staffRepo, auditRepo)
	uploadHandler := handler.NewUploadHandler(cfg, store, artifactRepo, auditRepo, extractionClient)
	studentHandler := handler.NewStudentHandler(artifactRepo, usernameRepo, store, orch)
	adminHandler := handler.NewAdminHandler(artifactRepo, mappingRepo, usernameRepo, auditRepo, lmsClient, cfg.MoodleAdminToken)

	requireStaff := examMiddleware.RequireStaff(staffAuth, staffRepo)
	requireAdmin := examMiddleware.RequireRole(model.RoleAdmin)
	requireStudent := examMiddleware.RequireStudent(sessionRepo)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","error":"%s"}`, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/staff/login", authHandler.StaffLogin)
		r.Post("/student/login", authHandler.StudentLogin)
		r.With(requireStudent).Post("/student/logout", authHandler.StudentLogout)
	})

	r.Route("/upload", func(r chi.Router) {
		r.Use(requireStaff)
		r.Post("/single", uploadHandler.Single)
		r.Post("/bulk", uploadHandler.Bulk)
		r.Get("/all", uploadHandler.List)
		r.Get("/auto-processed", uploadHandler.ListAutoProcessed)
	})

	r.Route("/extract", func(r chi.Router) {
		r.Use(requireStaff)
		r.Post("/scan-upload", uploadHandler.ScanUpload)
	})

	r.Route("/student", func(r chi.Router) {
		r.Use(requireStudent)
		r.Get("/dashboard", studentHandler.Dashboard)
		r.Get("/paper/{id}/view", studentHandler.ViewPaper)
		r.Post("/submit/{id}", studentHandler.Submit)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireStaff)
		r.Get("/mappings", adminHandler.ListMappings)
		r.Get("/audit", adminHandler.ListAudit)
		r.Get("/artifacts", adminHandler.ListAll)
		r.Get("/artifacts/unassigned", adminHandler.ListUnmapped)
		r.Get("/unassigned-logins", adminHandler.ListUnassignedLogins)
		r.Post("/username-map", adminHandler.AssignUsername)
		r.Delete("/artifacts/{id}", adminHandler.DeleteArtifact)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/mappings", adminHandler.UpsertMapping)
			r.Patch("/mappings/{id}/active", adminHandler.SetMappingActive)
			r.Post("/purge-all", adminHandler.PurgeAll)
			r.Get("/users/lookup", adminHandler.LookupUser)
		})
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down server...")
	stopWorker()

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(cancelCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
