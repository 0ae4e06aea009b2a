// Package api exposes the signal engine over HTTP: read endpoints for
// signals and gate statistics, operator endpoints for mode control and
// calibration, and a websocket feed of pipeline events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trading-signal-engine/internal/auth"
	"trading-signal-engine/internal/database"
	"trading-signal-engine/internal/events"
	"trading-signal-engine/internal/logging"
	"trading-signal-engine/internal/pipeline"
	"trading-signal-engine/internal/vault"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// CalibrationStore persists operator-supplied calibration samples.
// Optional; nil disables the calibration endpoints.
type CalibrationStore interface {
	SaveSample(ctx context.Context, sample *database.CalibrationSample) error
	RecentSamples(ctx context.Context, symbol string, limit int) ([]database.CalibrationSample, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowedOrigins string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *pipeline.Engine
	eventBus    *events.EventBus
	config      ServerConfig
	authService *auth.Service
	jwtManager  *auth.JWTManager
	authEnabled bool
	vaultClient *vault.Client
	calibration CalibrationStore
	symbols     map[string]bool
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	engine *pipeline.Engine,
	eventBus *events.EventBus,
	authService *auth.Service, // Can be nil if auth is disabled
	jwtManager *auth.JWTManager, // Can be nil if auth is disabled
	vaultClient *vault.Client, // Can be nil if vault is disabled
	calibration CalibrationStore, // Can be nil if the database is disabled
	symbols []string,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	allowed := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		allowed[s] = true
	}

	server := &Server{
		router:      router,
		engine:      engine,
		eventBus:    eventBus,
		config:      config,
		authService: authService,
		jwtManager:  jwtManager,
		authEnabled: authService != nil && jwtManager != nil,
		vaultClient: vaultClient,
		calibration: calibration,
		symbols:     allowed,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logging.WithComponent("api"),
	}

	server.setupRoutes()

	// Websocket hub broadcasts every pipeline event to connected clients
	InitWebSocket(eventBus)

	return server
}

// rateLimitMiddleware rate limits requests by endpoint path
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	if s.authEnabled {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.GET("/signal/:symbol", s.handleGetSignal)
		v1.POST("/signal/:symbol/refresh", s.handleRefreshSignal)
		v1.GET("/gate/statistics", s.handleGateStatistics)
		v1.GET("/mode", s.handleGetMode)

		protected := v1.Group("")
		if s.authEnabled {
			protected.Use(auth.Middleware(s.jwtManager))
		}
		protected.PUT("/mode", s.handleSetMode)
		protected.POST("/calibration/samples", s.handleAddCalibrationSample)
		protected.GET("/calibration/samples", s.handleListCalibrationSamples)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("API server starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// errorResponse sends a standardized error response
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// successResponse sends a standardized success response
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
