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
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"tablepick-backend/internal/config"
	"tablepick-backend/internal/container"
	"tablepick-backend/internal/handler"
	"tablepick-backend/internal/middleware"
	"tablepick-backend/internal/repository"
	"tablepick-backend/internal/service"
	"tablepick-backend/pkg/database"
	"tablepick-backend/pkg/logger"
	"tablepick-backend/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db          *database.PostgresDB
	redisClient *redis.Client
	reconciler  *service.Reconciler
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the reconciliation sweep
	if r.reconciler != nil {
		if err := r.reconciler.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop reconciler")
			errors = append(errors, fmt.Errorf("reconciler shutdown: %w", err))
		}
	}

	// Close Redis connection
	if r.redisClient != nil {
		r.log.Info("Closing Redis connection...")
		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errors = append(errors, fmt.Errorf("Redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed successfully")
		}
	}

	// Close database connection pool
	if r.db != nil {
		r.log.Info("Closing database connection pool...")
		r.db.Close()
		r.log.Info("Database connection pool closed successfully")
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting tablepick-backend server")

	// Create dependency injection container
	container, err := container.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	// Initialize database connection
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	redisClient := container.GetRedisClient()
	notifier := container.GetNotifier()

	// Initialize repositories
	voteRepo := repository.NewVoteRepository(db)
	matchRepo := repository.NewMatchRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	deckRepo := repository.NewDeckRepository(db)

	// Candidate catalog for deck generation
	catalog := loadCatalog(cfg, log)

	// Initialize services
	swipeService := service.NewSwipeService(voteRepo, matchRepo, membershipRepo, redisClient, notifier, log.Logger, cfg.EvalTimeout)
	deckService := service.NewDeckService(deckRepo, voteRepo, membershipRepo, catalog, redisClient, log.Logger, cfg.DeckSize)

	// Start the reconciliation sweep
	reconciler := service.NewReconciler(swipeService, voteRepo, log.Logger, cfg.SweepInterval)
	if err := reconciler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start reconciler")
	}

	// Setup router
	router := setupRouter(container, swipeService, deckService, notifier, db)

	// Create HTTP server; the write timeout stays generous because match
	// streams hold their connection open
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:          db,
		redisClient: redisClient,
		reconciler:  reconciler,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// loadCatalog builds the candidate source from the configured catalog file.
// Without one the server still runs; decks just come up empty.
func loadCatalog(cfg *config.Config, log *logger.Logger) *service.StaticCatalog {
	if cfg.CatalogPath == "" {
		log.Warn("CATALOG_PATH not configured, decks will be empty")
		return service.NewStaticCatalog(nil)
	}

	items, err := service.LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		log.WithError(err).Warn("Failed to load candidate catalog, decks will be empty")
		return service.NewStaticCatalog(nil)
	}

	log.WithField("items", len(items)).Info("Candidate catalog loaded")
	return service.NewStaticCatalog(items)
}

// setupRouter configures and returns the HTTP router
func setupRouter(container *container.Container, swipeService *service.SwipeService, deckService *service.DeckService, notifier service.MatchNotifier, db *database.PostgresDB) *chi.Mux {
	cfg := container.GetConfig()
	log := container.GetLogger()
	authService := container.GetAuthService()

	// Create router
	r := chi.NewRouter()

	// Setup CORS middleware
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	// Setup middlewares
	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	// Create handlers
	healthHandler := handler.NewHealthHandler(container, db)
	swipeHandler := handler.NewSwipeHandler(swipeService)
	matchHandler := handler.NewMatchHandler(swipeService, notifier, log)
	deckHandler := handler.NewDeckHandler(deckService)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	// Protected API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authService, log))

		r.Route("/swipes", func(r chi.Router) {
			r.Post("/", swipeHandler.SubmitSwipe)
			r.Get("/voted", swipeHandler.GetVotedItems)
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", matchHandler.GetMatches)
			r.Get("/stream", matchHandler.StreamMatches)
			r.Post("/resolve", matchHandler.ResolveMatch)
		})

		r.Get("/decks/{scopeID}", deckHandler.GetDeck)
	})

	return r
}
