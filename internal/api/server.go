package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"binance-futures-trader/internal/auth"
	"binance-futures-trader/internal/binance"
	"binance-futures-trader/internal/cache"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
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

// TradingAPI is the operation surface the HTTP handlers expose.
type TradingAPI interface {
	QuoteAsset() string
	PlaceMarketOrder(ctx context.Context, symbol string, side binance.Side, quantity decimal.Decimal) (*binance.OrderResponse, error)
	PlaceFullBalanceOrder(ctx context.Context, symbol string, side binance.Side) (*binance.OrderResponse, error)
	GetBalance(ctx context.Context) (string, error)
	GetOrderHistory(ctx context.Context, symbol string) ([]binance.OrderHistoryEntry, error)
	RefreshBalance(ctx context.Context) (*cache.BalanceSnapshot, error)
	LastKnownBalance(ctx context.Context) (*cache.BalanceSnapshot, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
	DefaultSymbol  string
	RateLimit      int // requests per minute per endpoint, 0 disables
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	trading      TradingAPI
	config       ServerConfig
	jwtManager   *auth.JWTManager
	rateLimiter  *RateLimiter
	healthChecks map[string]HealthCheck
	logger       zerolog.Logger
	startedAt    time.Time
}

// NewServer creates a new API server. jwtManager may be nil, in which case
// the trading routes are not authenticated.
func NewServer(config ServerConfig, trading TradingAPI, jwtManager *auth.JWTManager, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.DefaultSymbol == "" {
		config.DefaultSymbol = "BTCUSDT"
	}

	router := gin.New()

	server := &Server{
		router:       router,
		trading:      trading,
		config:       config,
		jwtManager:   jwtManager,
		healthChecks: make(map[string]HealthCheck),
		logger:       logger.With().Str("component", "api").Logger(),
		startedAt:    time.Now(),
	}
	if config.RateLimit > 0 {
		server.rateLimiter = NewRateLimiter(config.RateLimit, time.Minute)
	}

	// Middleware
	router.Use(server.requestContextMiddleware())
	router.Use(server.accessLogMiddleware())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(config.AllowedOrigins)))

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  orDuration(config.ReadTimeout, 15*time.Second),
		WriteTimeout: orDuration(config.WriteTimeout, 15*time.Second),
		IdleTimeout:  60 * time.Second,
	}

	return server
}

func corsConfig(allowedOrigins string) cors.Config {
	corsConfig := cors.DefaultConfig()
	origins := splitOrigins(allowedOrigins)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", headerRequestID}
	corsConfig.ExposeHeaders = []string{"Content-Length", headerRequestID}
	return corsConfig
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AddHealthCheck registers a dependency reported by /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.healthChecks[name] = check
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// rateLimitMiddleware rate limits requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter == nil {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Too many requests to this endpoint. Please slow down to avoid exchange bans.",
				"path":    path,
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	group := s.router.Group("/binance")
	if s.jwtManager != nil {
		group.Use(auth.Middleware(s.jwtManager))
	}
	group.Use(s.rateLimitMiddleware())
	{
		group.POST("/place-order", s.handlePlaceOrder)
		group.POST("/place-full-balance-order", s.handlePlaceFullBalanceOrder)
		group.GET("/balances", s.handleGetBalance)
		group.GET("/fetch-balances", s.handleFetchBalance)
		group.GET("/last-balance", s.handleLastBalance)
		group.GET("/order-history", s.handleOrderHistory)
	}
}

// Start serves until Shutdown is called. Calling Shutdown first makes Start
// return immediately.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.jwtManager != nil).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(s.healthChecks))
	for name, check := range s.healthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "healthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"checks":  checks,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"started": s.startedAt.Format(time.RFC3339),
	})
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
