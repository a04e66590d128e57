package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"mamachat/internal/api"
	"mamachat/internal/auth"
	"mamachat/internal/config"
	"mamachat/internal/observability"
	"mamachat/internal/redis"
	"mamachat/internal/service/ai"
	"mamachat/internal/service/chat"
	"mamachat/internal/service/records"
	"mamachat/internal/storage"
	"mamachat/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("MAMACHAT_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := cfg.BasicConfig.DatabaseType
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("mamachat", nil)
	store := records.NewStore(db, dbType)
	loader := records.NewLoader(store, records.LoaderOptions{
		MemoryLimit: cfg.Chat.MemoryLimit,
		CacheTTL:    time.Duration(cfg.Chat.SnapshotCacheTTL) * time.Second,
		Redis:       rdb,
		Metrics:     metrics,
	})
	loader.Start(ctx)

	// A missing provider key keeps the server up; opening a session then
	// reports a configuration error.
	provider, err := ai.NewProvider(ctx, cfg.Chat.Provider, cfg.Providers[cfg.Chat.Provider])
	if err != nil {
		log.Printf("init provider %s: %v", cfg.Chat.Provider, err)
		provider = nil
	}
	engine := chat.NewEngine(provider, chat.Options{
		BlockLimit:         cfg.Chat.BlockLimit,
		MaxAttachmentBytes: cfg.Chat.MaxAttachmentBytes,
	})
	manager := worker.NewManager(engine, loader, store, metrics, worker.Config{
		QueueSize:          cfg.BasicConfig.QueueSize,
		IdleTimeout:        time.Duration(cfg.BasicConfig.SessionIdleTimeout) * time.Minute,
		MaxSessionsPerUser: cfg.BasicConfig.MaxSessionsPerUser,
	})
	manager.StartJanitor(ctx)
	defer manager.Shutdown()

	handlers := api.NewHandler(auth.NewService(db, dbType), manager, store, cfg.Chat.MaxAttachmentBytes)
	router := gin.Default()
	router.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": engine.ProviderName()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
}
