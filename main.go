package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/betterocean/betterocean/api-service/handlers"
	"github.com/betterocean/betterocean/api-service/internal/chat"
	"github.com/betterocean/betterocean/api-service/internal/config"
	"github.com/betterocean/betterocean/api-service/internal/database"
	"github.com/betterocean/betterocean/api-service/internal/market"
	"github.com/betterocean/betterocean/api-service/internal/schwab"
	"github.com/betterocean/betterocean/api-service/internal/sessions"
	"github.com/betterocean/betterocean/api-service/pkg/logger"
	"github.com/betterocean/betterocean/api-service/pkg/metrics"
	"github.com/betterocean/betterocean/api-service/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level is controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: schwab=%v mongo=%v redis=%v gradient=%v",
		cfg.Schwab.ClientID != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Gradient.Endpoint != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// Connect to Redis early so both the rate limiter and the session store can use it
	ctx := context.Background()
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		candidate := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := candidate.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		} else {
			redisClient = candidate
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Session store precedence: Redis when reachable, MongoDB when configured,
	// otherwise in-process memory (sessions lost on restart).
	var sessionRepo sessions.Repository
	var mongoClient *mongo.Client
	switch {
	case redisClient != nil:
		sessionRepo = sessions.NewRedisRepository(redisClient, "session:", cfg.Session.TTL)
		logger.Infof("using Redis for session storage")
	case cfg.MongoDB.URI != "":
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts, falling back to memory sessions: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			col := mongoClient.Database(cfg.MongoDB.Database).Collection("sessions")
			sessionRepo = sessions.NewMongoRepository(col)
			logger.Infof("using MongoDB for session storage")
		}
	}
	if sessionRepo == nil {
		sessionRepo = sessions.NewMemoryRepository()
		logger.Infof("using in-memory session storage")
	}

	sessionsSvc := sessions.NewService(sessionRepo, cfg.Session.CookieName, cfg.Session.Secret, cfg.Session.TTL)

	schwabClient := schwab.NewClient(cfg.Schwab)
	dispatcher := schwab.NewDispatcher(schwabClient, sessionRepo)
	marketClient := market.NewClient(cfg.Market)
	chatSvc := chat.NewService(cfg.Gradient)
	if !chatSvc.Enabled() {
		logger.Warnf("Gradient agent not configured; /chat/message will return 503")
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "service": "betterocean-api-service"})
	})

	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"storage": true,
			"schwab":  schwabClient.Configured() == nil,
			"chat":    chatSvc.Enabled(),
		}
		if cfg.Redis.Host != "" {
			deps["redis"] = redisClient != nil
		}
		if cfg.MongoDB.URI != "" {
			deps["mongodb"] = mongoClient != nil
		}
		ready := true
		for _, dep := range []string{"redis", "mongodb"} {
			if ok, present := deps[dep]; present && !ok {
				ready = false
			}
		}
		status := http.StatusOK
		state := "ready"
		if !ready {
			status = http.StatusServiceUnavailable
			state = "not_ready"
		}
		c.JSON(status, gin.H{"status": state, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// the session middleware must run before the rate limiter so the limiter
	// keys buckets by session id instead of collapsing everything onto the
	// client IP
	r.Use(middleware.SessionMiddleware(sessionsSvc, cfg.Session.SecureCookie))

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	schwabHandler := handlers.NewSchwabHandler(cfg, sessionsSvc, schwabClient, dispatcher)
	marketHandler := handlers.NewMarketHandler(marketClient)
	chatHandler := handlers.NewChatHandler(chatSvc)

	// the browser client calls routes both bare and under /api
	for _, g := range []*gin.RouterGroup{r.Group(""), r.Group("/api")} {
		schwabHandler.Register(g, middleware.RequireSchwab())
		marketHandler.Register(g)
		chatHandler.Register(g)
	}

	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting api-service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
