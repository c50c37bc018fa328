package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lastping/lastpingd/internal/auth"
	"github.com/lastping/lastpingd/internal/liveness"
	"github.com/lastping/lastpingd/internal/observability"
	"github.com/lastping/lastpingd/internal/principal"
	"github.com/lastping/lastpingd/internal/ratelimit"
)

const callerKey = "caller"

type Server struct {
	ID          string
	Registry    *liveness.Registry
	Identifier  auth.Identifier
	ClaimLimits *ratelimit.KeyLimiter
	Clock       liveness.Clock

	router  *gin.Engine
	started time.Time
}

type Options struct {
	ID          string
	CorsOrigins []string
	Registry    *liveness.Registry
	Identifier  auth.Identifier
	ClaimLimits *ratelimit.KeyLimiter
	Clock       liveness.Clock
}

func NewServer(opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(opts.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Server{
		ID:          opts.ID,
		Registry:    opts.Registry,
		Identifier:  opts.Identifier,
		ClaimLimits: opts.ClaimLimits,
		Clock:       clock,
		router:      r,
		started:     time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(s.started).String(),
			"node":   s.ID,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"uptime": time.Since(s.started).String(),
			"node":   s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	v1.Use(s.requireCaller())

	v1.GET("/accounts/:principal/exists", s.handleExists)
	v1.GET("/accounts/:principal", s.handleStatusOf)
	v1.GET("/account", s.handleStatusSelf)
	v1.POST("/account", s.handleInitialize)
	v1.POST("/account/ping", s.handlePing)
	v1.POST("/account/backup", s.handleSetBackup)
	v1.POST("/account/timeout", s.handleSetTimeout)
	v1.POST("/accounts/:principal/claim", s.handleClaim)
}

// requireCaller resolves the bearer token to a caller principal.
func (s *Server) requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		caller, err := s.Identifier.Identify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func (s *Server) caller(c *gin.Context) principal.Principal {
	v, _ := c.Get(callerKey)
	p, _ := v.(principal.Principal)
	return p
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
