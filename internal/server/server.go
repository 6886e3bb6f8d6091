// Package server wires the store, services, handlers and middleware into one
// HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  └─ store (sqlite or memory)
//	       └─ services (user, classroom, game, attempt) + leveling engine + metrics
//	            └─ handlers + access guards
//	                 └─ chi router (/api/v1, /healthz, /metrics)
//
// Everything is assembled in New, so tests can build a complete server
// without a network listener and drive it through Handler().
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/brightminds/internal/auth"
	"github.com/sakif/brightminds/internal/config"
	"github.com/sakif/brightminds/internal/handler"
	"github.com/sakif/brightminds/internal/leveling"
	"github.com/sakif/brightminds/internal/metrics"
	"github.com/sakif/brightminds/internal/middleware"
	"github.com/sakif/brightminds/internal/service"
	"github.com/sakif/brightminds/internal/store"
	"github.com/sakif/brightminds/internal/store/memory"
	"github.com/sakif/brightminds/internal/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

// Server owns the router and the store; Start closes the store on shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	store   store.Store
	metrics *metrics.Metrics
}

// New opens the configured store and builds the full route tree.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   st,
		metrics: metrics.New(),
	}
	if err := s.setupRoutes(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using the in-memory store; data is lost on restart")
		return memory.New(memory.WithMaxAttempts(cfg.TxMaxAttempts)), nil
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		sqlCfg := sqlite.DefaultConfig()
		sqlCfg.MaxAttempts = cfg.TxMaxAttempts
		db, err := sqlite.New(cfg.DBPath, sqlCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// setupRoutes builds the middleware chain and mounts the API.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: request metadata the logger reads
//  2. Logger: logs and times every request, including panics turned into 500s
//  3. Recoverer: turns a panic into a 500
//  4. CORS: answers browser preflights before auth runs
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.JWTIssuer)
	if err != nil {
		return err
	}
	teacherCode, err := auth.NewEnrollmentCode(s.config.TeacherCodeHash)
	if err != nil {
		return err
	}
	if s.config.TeacherCodeHash == "" {
		s.logger.Warn("TEACHER_ENROLLMENT_CODE_HASH not set; teacher registration is disabled")
	}
	engine, err := leveling.New(leveling.Config{
		BaseXP:     s.config.BaseXP,
		Multiplier: s.config.LevelMultiplier,
	})
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithRecorder(s.metrics)}
	users := service.NewUserService(s.store, engine, teacherCode, s.logger, opts...)
	classrooms := service.NewClassroomService(s.store, s.logger, opts...)
	games := service.NewGameService(s.store, s.logger, opts...)
	attempts := service.NewAttemptService(s.store, engine, s.config.DefaultMaxAttempts, s.logger, opts...)

	validate := handler.NewValidator(time.Now)
	api := &handler.API{
		Users:      handler.NewUserHandler(users, validate, s.logger),
		Classrooms: handler.NewClassroomHandler(classrooms, validate, s.logger),
		Games:      handler.NewGameHandler(games, validate, s.logger),
		Attempts:   handler.NewAttemptHandler(attempts, validate, s.logger),
		Access:     handler.NewAccess(classrooms, users, s.logger),
	}

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger, s.metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(auth.LoadCaller(users, s.logger))
		api.Mount(r)
	})
	return nil
}

// handleHealth reports whether the store answers a read.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	var probe struct{}
	err := s.store.Get(ctx, store.Doc("health", "probe"), &probe)
	if err != nil && !errors.Is(err, store.ErrNoDocument) {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q,"store":%q}`+"\n", status, s.config.StoreBackend)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the store. Start calls it on shutdown.
func (s *Server) Close() error { return s.store.Close() }

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreBackend),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
