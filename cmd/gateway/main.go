package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"

	api "github.com/mind-engage/mindengage-handin/internal/api/http"
	"github.com/mind-engage/mindengage-handin/internal/archive"
	"github.com/mind-engage/mindengage-handin/internal/assist"
	auth "github.com/mind-engage/mindengage-handin/internal/auth/middleware"
	"github.com/mind-engage/mindengage-handin/internal/config"
	"github.com/mind-engage/mindengage-handin/internal/db"
	"github.com/mind-engage/mindengage-handin/internal/ident"
	"github.com/mind-engage/mindengage-handin/internal/logger"
	"github.com/mind-engage/mindengage-handin/internal/metrics"
	"github.com/mind-engage/mindengage-handin/internal/reconcile"
	"github.com/mind-engage/mindengage-handin/internal/render"
	"github.com/mind-engage/mindengage-handin/internal/session"
	"github.com/mind-engage/mindengage-handin/internal/storage"
	"github.com/mind-engage/mindengage-handin/internal/submission"
	"github.com/mind-engage/mindengage-handin/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "handin-gateway", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	m := metrics.New(nil)

	// --- Reconciliation ---
	ex := ident.New(cfg.IDLength)
	cls := submission.NewClassifier(ex,
		submission.WithMinSize(cfg.MinSubmission),
		submission.WithIgnoredPrefixes(cfg.IgnoredPrefixes...),
	)
	sessions := session.NewStore(cfg.SessionTTL)
	go evictLoop(ctx, sessions, log)

	deps := &api.Deps{
		Pipeline:  reconcile.NewPipeline(ex, cls, m),
		Sessions:  sessions,
		MaxUpload: cfg.MaxUploadMB << 20,
		Log:       log,
	}

	// --- AI assist (optional) ---
	if cfg.AssistEnabled() {
		c, err := newCompleter(cfg)
		if err != nil {
			return fmt.Errorf("assist setup: %w", err)
		}
		deps.Assist = assist.NewService(c,
			assist.WithOCRModel(cfg.AssistOCRModel),
			assist.WithTextModel(cfg.AssistTextModel),
			assist.WithOCRTimeout(cfg.AssistOCRTimeout),
			assist.WithTextTimeout(cfg.AssistTextTimeout),
			assist.WithRenderer(assist.NewFitzRenderer(cfg.AssistRenderDPI)),
			assist.WithRecorder(m),
		)
		log.Info("assist enabled", "provider", cfg.AssistProvider, "ocr_model", cfg.AssistOCRModel, "text_model", cfg.AssistTextModel)
	}

	// --- Run archive (optional) ---
	var dbh *sqlx.DB
	if cfg.ArchiveEnabled {
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(octx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer dbh.Close()
		deps.Runs = archive.NewRunRepo(dbh)
	}

	// --- Exports + PDF ---
	bs, err := storage.NewFSStore(cfg.ExportDir)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	deps.Exports = bs
	if pdf := render.NewChromiumPDFRenderer(cfg.ChromePath); pdf.Available() {
		deps.PDF = pdf
	} else {
		log.Warn("no Chrome/Chromium found, PDF reports disabled")
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	if cfg.AuthEnabled {
		r.Post("/auth/login", auth.LoginHandler(authSvc, cfg.Accounts))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		if cfg.AuthEnabled {
			pr.Use(auth.JWTMiddleware(authSvc), auth.AttachRoleFromAccounts(cfg.Accounts))
		} else {
			pr.Use(auth.OfflineIdentity("local"))
		}
		api.Mount(pr, deps)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if dbh != nil {
			if err := dbh.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "auth", cfg.AuthEnabled, "archive", cfg.ArchiveEnabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newCompleter(cfg config.Config) (assist.Completer, error) {
	if cfg.AssistProvider == config.ProviderAnthropic {
		return assist.NewAnthropic(cfg.AnthropicAPIKey)
	}
	return assist.NewOpenAICompatible(cfg.AssistBaseURL, cfg.AssistAPIKey, nil), nil
}

func evictLoop(ctx context.Context, s *session.Store, log *slog.Logger) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Evict(); n > 0 {
				log.Debug("evicted sessions", "count", n)
			}
		}
	}
}
