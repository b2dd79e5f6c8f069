package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/config"
)

// Limits per caller. Deploy and pair open a messaging connection each, so
// they get the stricter budget.
const (
	userRequestsPerMinute = 30
	pairRequestsPerHour   = 10
)

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
	srv     *http.Server

	userLimiter *RateLimiter
	pairLimiter *RateLimiter
}

func NewServer(cfg *config.Config, handler *Handler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())

	s := &Server{
		router:      router,
		handler:     handler,
		cfg:         cfg,
		userLimiter: NewRateLimiter(userRequestsPerMinute, time.Minute),
		pairLimiter: NewRateLimiter(pairRequestsPerHour, time.Hour),
	}

	s.srv = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "deployment-service",
		})
	})

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(s.userLimiter))
	{
		user.POST("/deploy", RateLimitMiddleware(s.pairLimiter), s.handler.Deploy)
		user.POST("/pair", RateLimitMiddleware(s.pairLimiter), s.handler.Pair)
		user.GET("/pair/:phone", s.handler.PairStatus)
		user.POST("/provision", s.handler.Provision)
	}

	// Internal API - operator tooling
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.GET("/sessions", s.handler.ListSessions)
		internal.DELETE("/sessions/:phone", s.handler.DeleteSession)
		internal.GET("/deployments/:phone", s.handler.GetDeployment)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	log.Info().Str("addr", s.srv.Addr).Msg("server starting")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
