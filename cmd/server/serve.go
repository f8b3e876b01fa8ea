package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bluefermion/annotator/internal/binding"
	"github.com/bluefermion/annotator/internal/catalog"
	"github.com/bluefermion/annotator/internal/config"
	"github.com/bluefermion/annotator/internal/handler"
	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/repository"
	"github.com/bluefermion/annotator/internal/session"
	"github.com/bluefermion/annotator/internal/submission"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the annotation server",
		Action: runServe,
	}
}

// loadConfig loads and validates the configuration and sets up logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogging(cfg)
	return cfg, nil
}

// setupLogging uses a human-readable console writer outside production and
// JSON lines in production.
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// loadCatalog returns an empty resolver when no catalog is configured; the
// binding layer then renders elements without overlays.
func loadCatalog(cfg *config.Config) (*catalog.Resolver, error) {
	if cfg.Catalog.Path == "" {
		log.Warn().Msg("No catalog configured, elements will render without metadata")
		return catalog.NewResolver(nil, nil), nil
	}
	return catalog.LoadFile(cfg.Catalog.Path, cfg.Catalog.RepositoryURL)
}

func runServe(c *cli.Context) error {
	// -------------------------------------------------------------------------
	// 1. CONFIGURATION LOADING
	// -------------------------------------------------------------------------
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	resolver, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	if dangling := resolver.Registry.Dangling(resolver.Catalog); len(dangling) > 0 {
		log.Warn().Int("count", len(dangling)).Msg("Catalog has usages with missing definitions; run check-catalog for details")
	}

	// -------------------------------------------------------------------------
	// 2. DEPENDENCY INJECTION & INITIALIZATION
	// -------------------------------------------------------------------------
	repo, err := repository.NewSQLiteRepository(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.New(ctx, session.Options{
		Resolver:   resolver,
		Persister:  repo,
		RecordName: cfg.Annotation.RecordName,
		Submitter:  submission.NewClient(cfg.ClientOptions()),
		History:    repo,
		App: session.AppInfo{
			Environment: cfg.App.Environment,
			ProjectID:   cfg.App.ProjectID,
			Version:     cfg.App.Version,
		},
		Config:     cfg.SessionConfig(),
		Enabled:    cfg.Annotation.Enabled,
		ClearDelay: cfg.Submission.ClearDelay,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	defer store.Close()

	binder := binding.New(store, binding.Options{Production: cfg.IsProduction()})
	annotationHandler := handler.NewAnnotationHandler(store, binder, repo, os.DirFS(cfg.Server.TemplatesDir))

	// -------------------------------------------------------------------------
	// 3. ROUTER SETUP
	// -------------------------------------------------------------------------
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /health", healthHandler(repo))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))
	annotationHandler.Register(mux)

	// -------------------------------------------------------------------------
	// 4. MIDDLEWARE & SERVER START
	// -------------------------------------------------------------------------
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           recoverMiddleware(loggingMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("addr", srv.Addr).
		Str("db", cfg.Server.DBPath).
		Str("environment", cfg.App.Environment).
		Int("usages", resolver.Registry.Len()).
		Int("definitions", resolver.Catalog.Len()).
		Msg("Starting annotator")
	log.Info().Msgf("Demo: http://localhost:%s/demo", cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// handleRoot returns basic metadata about the service.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "annotator",
		"version": version,
		"status":  "ok",
	})
}

// healthHandler reports healthy when the database answers.
func healthHandler(repo *repository.SQLiteRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := repo.Ping(r.Context()); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}
}

// statusRecorder captures the status code written by the inner handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs the method, path, status and duration of every request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// recoverMiddleware turns a handler panic into a 500 carrying an error id that
// can be matched against the log line.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				errorID := "err_" + uuid.NewString()[:8]
				log.Error().
					Str("error_id", errorID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", v).
					Msg("Handler panicked")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(model.ErrorResponse{
					Error:   "Internal server error",
					Details: errorID,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
