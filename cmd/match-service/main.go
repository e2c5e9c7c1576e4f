package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paircall-backend/internal/config"
	intDatabase "paircall-backend/internal/database"
	matchHTTP "paircall-backend/internal/handler/http/match"
	wsHandler "paircall-backend/internal/handler/ws"
	"paircall-backend/internal/middleware"
	"paircall-backend/internal/repository/cassandra"
	"paircall-backend/internal/repository/cockroach"
	redisRepo "paircall-backend/internal/repository/redis"
	callService "paircall-backend/internal/service/call"
	chatService "paircall-backend/internal/service/chat"
	matchService "paircall-backend/internal/service/matchmaking"
	relayService "paircall-backend/internal/service/relay"
	pkgDatabase "paircall-backend/pkg/database"
	"paircall-backend/pkg/jwt"
	"paircall-backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	logger.InitDefault()
	defer logger.Sync()

	// 1. JWT manager
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWTSecret, 15*time.Minute)

	// 2. Redis with degraded mode support
	intDatabase.InitRedisMetrics()
	redisDB, err := intDatabase.NewRedisDB(&intDatabase.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       0,
		PoolSize: 10,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to create Redis client: %v", err)
	}
	defer redisDB.Close()

	if err := redisDB.HealthCheck(ctx); err != nil {
		log.Printf("Warning: Redis unreachable at startup: %v", err)
	} else {
		log.Println("✅ Connected to Redis")
	}
	redisDB.StartHealthCheck(ctx, 10*time.Second)

	// 3. CockroachDB with exponential backoff retry
	db := connectCockroach(ctx, cfg)
	defer db.Close()

	// 4. Cassandra for chat history
	cassandraDB, err := pkgDatabase.NewCassandraDB(&pkgDatabase.CassandraConfig{
		Hosts:    cfg.CassandraHosts,
		Keyspace: cfg.CassandraKeyspace,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Cassandra: %v", err)
	}
	defer cassandraDB.Close()
	log.Println("✅ Connected to Cassandra")

	// 5. Repositories
	queueRepo := redisRepo.NewQueueRepository(redisDB)
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	sessionRepo := redisRepo.NewSessionRepository(redisDB)
	broadcastRepo := redisRepo.NewBroadcastRepository(redisDB)
	callRepo := cockroach.NewCallRepository(db.Pool)
	userRepo := cockroach.NewUserRepository(db.Pool)
	messageRepo := cassandra.NewMessageRepository(cassandraDB.Session)

	// 6. Hub, relay, services. The hub doubles as the relay's local
	// registry, so it exists before the services and gets its dispatcher
	// wired afterwards.
	hub := wsHandler.NewHub(nil)
	relaySvc := relayService.NewService(hub, broadcastRepo, cfg.InstanceID)
	callSvc := callService.NewService(callRepo, presenceRepo, relaySvc)
	matchmakingSvc := matchService.NewService(
		queueRepo, presenceRepo, sessionRepo, userRepo, callRepo, callSvc, relaySvc)
	chatSvc := chatService.NewService(messageRepo, callRepo, userRepo, relaySvc)

	dispatcher := wsHandler.NewMatchHandler(matchmakingSvc, callSvc, chatSvc, relaySvc)
	hub.SetDispatcher(dispatcher)
	go hub.Run()

	go func() {
		if err := relaySvc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Warning: relay subscription ended: %v", err)
		}
	}()
	log.Printf("✅ Relay subscribed (instance %s)", cfg.InstanceID)

	// 7. HTTP handlers
	matchHdlr := matchHTTP.NewHandler(matchmakingSvc, callSvc, callRepo, chatSvc)

	// 8. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.PrometheusMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "healthy",
			"service":  "match-service",
			"instance": cfg.InstanceID,
			"time":     time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager))
	{
		v1.GET("/match/stats", matchHdlr.Stats)
		v1.GET("/users/:id/presence", matchHdlr.Presence)
		v1.GET("/calls/:id", matchHdlr.GetCall)
		v1.POST("/calls/:id/end", matchHdlr.EndCall)
		v1.POST("/calls/:id/cancel", matchHdlr.CancelCall)
		v1.GET("/calls/:id/messages", matchHdlr.History)

		v1.GET("/ws", hub.ServeWS)
	}

	// 9. Serve with graceful shutdown
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Match service starting on port %d", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
}

// connectCockroach dials the durable store with exponential backoff.
// The service cannot run without it.
func connectCockroach(ctx context.Context, cfg *config.Config) *pkgDatabase.CockroachDB {
	dbConfig := &pkgDatabase.CockroachConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := pkgDatabase.NewCockroachDB(ctx, dbConfig)
	if err == nil {
		log.Println("✅ Connected to CockroachDB")
		return db
	}

	for attempt := 2; attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		log.Printf("⚠️  CockroachDB connection attempt %d failed: %v. Retrying in %v...", attempt-1, err, delay)
		time.Sleep(delay)

		db, err = pkgDatabase.NewCockroachDB(ctx, dbConfig)
		if err == nil {
			log.Printf("✅ Connected to CockroachDB (attempt %d/%d)", attempt, maxRetries)
			return db
		}
	}

	log.Fatalf("Failed to connect to CockroachDB after %d attempts: %v", maxRetries, err)
	return nil
}
