package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Rafael-Renck/sistema-preco/internal/cache"
	"github.com/Rafael-Renck/sistema-preco/internal/catalog"
	"github.com/Rafael-Renck/sistema-preco/internal/cbhpm"
	"github.com/Rafael-Renck/sistema-preco/internal/ceilings"
	"github.com/Rafael-Renck/sistema-preco/internal/config"
	"github.com/Rafael-Renck/sistema-preco/internal/cron"
	"github.com/Rafael-Renck/sistema-preco/internal/ctxkeys"
	"github.com/Rafael-Renck/sistema-preco/internal/database"
	"github.com/Rafael-Renck/sistema-preco/internal/handlers"
	"github.com/Rafael-Renck/sistema-preco/internal/history"
	"github.com/Rafael-Renck/sistema-preco/internal/logger"
	"github.com/Rafael-Renck/sistema-preco/internal/middleware"
	"github.com/Rafael-Renck/sistema-preco/internal/rules"
	"github.com/Rafael-Renck/sistema-preco/internal/storage"
)

func main() {
	// 1. Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Connect to PostgreSQL
	db, err := database.New(ctx, cfg.DB, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 3. Redis is optional: without it rule sets are read from Postgres on
	// every simulation and no history is kept.
	var (
		rulesCache   rules.Cache
		historyStore handlers.HistoryStore
		healthCache  handlers.Pinger
	)
	redisClient, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		zlog.Warn("redis unavailable, running without cache", zap.Error(err))
	} else {
		defer redisClient.Close()
		rulesCache = redisClient
		historyStore = history.NewStore(redisClient, cfg.HistoryTTL, zlog)
		healthCache = redisClient
	}

	// 4. Object storage for import previews
	fileStore, err := newFileStore(ctx, cfg.Storage)
	if err != nil {
		zlog.Fatal("failed to initialize file storage", zap.Error(err))
	}

	// 5. Repositories and services
	catalogRepo := database.NewCatalogRepository(db, zlog)
	ceilingRepo := database.NewCeilingRepository(db, zlog)
	ruleRepo := database.NewRuleSetRepository(db, zlog)

	activeRules := rules.NewStore(ruleRepo, rulesCache, cfg.RuleSetCacheTTL, zlog)
	resolver := catalog.NewResolver(catalogRepo, zlog)
	simulator := cbhpm.NewSimulator(catalogRepo, ceilingRepo, resolver, activeRules, zlog)
	previews := ceilings.NewPreviewStore(fileStore, cfg.PreviewTTL, zlog)

	// Start background cron jobs
	cron.StartPreviewSweeper(ctx, previews, cfg.SweepInterval, cfg.PreviewTTL, zlog)

	// 6. Handlers
	healthHandler := handlers.NewHealthHandler(db, healthCache)
	simulationHandler := handlers.NewSimulationHandler(simulator, historyStore, zlog)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, zlog)
	ruleSetHandler := handlers.NewRuleSetHandler(ruleRepo, activeRules, zlog)
	ceilingHandler := handlers.NewCeilingHandler(ceilingRepo, previews, zlog)
	tableHandler := handlers.NewTableHandler(catalogRepo, zlog)

	// 7. Router with global middleware
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(zlog))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", healthHandler.Check)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.With(middleware.RateLimit(rate.Limit(cfg.SimulationRatePerSec), cfg.SimulationBurst, zlog)).
			Post("/api/simulacao_cbhpm", simulationHandler.Simulate)
		r.Get("/api/simulacao_cbhpm/historico", simulationHandler.History)

		r.Get("/api/simulacao_dtp", catalogHandler.SearchPackages)
		r.Get("/api/versoes_por_codigo", catalogHandler.Versions)
		r.Get("/api/prestadores_por_codigo", catalogHandler.Providers)
		r.Get("/api/cbhpm/comparar", catalogHandler.Compare)

		// Administration restricted to the adm role
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireMinRole(ctxkeys.RoleAdm))

			r.Route("/cbhpm/regras", func(r chi.Router) {
				r.Get("/", ruleSetHandler.List)
				r.Post("/", ruleSetHandler.Create)
				r.Get("/padrao", ruleSetHandler.Default)
				r.Get("/ativa", ruleSetHandler.Active)
				r.Put("/{id}", ruleSetHandler.Update)
				r.Post("/{id}/ativar", ruleSetHandler.Activate)
			})

			r.Route("/tetos", func(r chi.Router) {
				r.Get("/", ceilingHandler.List)
				r.Post("/preview", ceilingHandler.Preview)
				r.Post("/importar", ceilingHandler.Import)
				r.Delete("/{codigo}", ceilingHandler.Delete)
			})

			r.Put("/tabelas/{id}/uco", tableHandler.SetUCO)
		})
	})

	// 8. Start server with graceful shutdown
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		zlog.Info("server started", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-done
	zlog.Info("server stopping")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		return
	}

	zlog.Info("server exited properly")
}

// newFileStore picks the storage driver named in the config.
func newFileStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == config.StorageR2 {
		return storage.NewR2Store(ctx, cfg.AccountID, cfg.AccessKey, cfg.SecretKey, cfg.Bucket, cfg.PublicURL)
	}
	return storage.NewLocalStore(cfg.Dir, cfg.BaseURL)
}
