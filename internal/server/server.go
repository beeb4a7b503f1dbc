package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/midikiti/internal/auth"
	"github.com/danmuck/midikiti/internal/observability"
	"github.com/danmuck/midikiti/internal/surface"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a surface.Service over HTTP.
type Server struct {
	Addr    string
	Started time.Time

	svc    *surface.Service
	router *gin.Engine
	guard  auth.Validator
}

func New(svc *surface.Service, addr string, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, func() string {
		if sess := svc.Current(); sess != nil {
			return sess.ID()
		}
		return ""
	}))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:    addr,
		Started: time.Now(),
		svc:     svc,
		router:  r,
	}
	s.RegisterRoutes()
	return s
}

// RequireToken guards every route that talks to the device or changes
// values. A nil validator leaves them open.
func (s *Server) RequireToken(v auth.Validator) {
	s.guard = v
}

func (s *Server) authorize(c *gin.Context) {
	if s.guard == nil {
		c.Next()
		return
	}
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok || s.guard.Validate(token) != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
		return
	}
	c.Next()
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("server.Serve listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Str("addr", s.Addr).Msg("server.Serve stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
