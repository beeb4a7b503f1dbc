package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/danmuck/midikiti/internal/device"
	"github.com/danmuck/midikiti/internal/protocol"
	"github.com/danmuck/midikiti/internal/protocol/schema"
	"github.com/danmuck/midikiti/internal/surface"
	"github.com/danmuck/midikiti/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type connectRequest struct {
	Port string `json:"port"`
}

type valuesRequest struct {
	Values map[string]any `json:"values"`
	Push   bool           `json:"push"`
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.Started).String(),
			"connected": false,
		}
		if sess := s.svc.Current(); sess != nil {
			body["connected"] = true
			body["session"] = sess.ID()
			body["port"] = sess.Port()
			if err := sess.DiscoveryErr(); err != nil {
				body["discovery_error"] = err.Error()
			}
		}
		c.JSON(http.StatusOK, body)
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ports", func(c *gin.Context) {
		ports, err := s.svc.Ports()
		if err != nil {
			respondError(c, err)
			return
		}
		if ports == nil {
			ports = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"ports": ports})
	})

	s.router.POST("/connect", s.authorize, func(c *gin.Context) {
		var req connectRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		name, err := s.svc.ResolvePort(req.Port)
		if err != nil {
			respondError(c, err)
			return
		}
		sess, err := s.svc.Connect(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"session": sess.ID(),
			"port":    sess.Port(),
			"layout":  sess.Layout().Snapshot(),
		})
	})

	s.router.POST("/disconnect", s.authorize, func(c *gin.Context) {
		if err := s.svc.Disconnect(); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/layout", func(c *gin.Context) {
		layout, err := s.svc.Layout()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, layout.Snapshot())
	})

	s.router.POST("/refresh", s.authorize, func(c *gin.Context) {
		if err := s.svc.RefreshAll(); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
	})

	iface := s.router.Group("/commanders/:commander/interfaces/:interface")
	iface.GET("", func(c *gin.Context) {
		it, ok := s.lookup(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, it.Snapshot())
	})

	iface.PUT("", s.authorize, func(c *gin.Context) {
		it, ok := s.lookup(c)
		if !ok {
			return
		}
		var req valuesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := applyValues(it, req.Values); err != nil {
			respondError(c, err)
			return
		}
		if req.Push {
			if err := s.svc.Push(int(it.Commander()), int(it.Index())); err != nil {
				respondError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, it.Snapshot())
	})

	iface.POST("/push", s.authorize, func(c *gin.Context) {
		it, ok := s.lookup(c)
		if !ok {
			return
		}
		if err := s.svc.Push(int(it.Commander()), int(it.Index())); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	})

	iface.POST("/refresh", s.authorize, func(c *gin.Context) {
		it, ok := s.lookup(c)
		if !ok {
			return
		}
		if err := s.svc.Refresh(int(it.Commander()), int(it.Index())); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
	})
}

func (s *Server) lookup(c *gin.Context) (*device.Interface, bool) {
	ci, err := strconv.Atoi(c.Param("commander"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid commander index"})
		return nil, false
	}
	ii, err := strconv.Atoi(c.Param("interface"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interface index"})
		return nil, false
	}
	it, err := s.svc.Interface(ci, ii)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return it, true
}

// applyValues converts every field before storing any, so a bad field
// leaves the interface untouched.
func applyValues(it *device.Interface, in map[string]any) error {
	sc := it.Schema()
	if sc == nil {
		return device.ErrNoSchema
	}
	if !it.HasValues() {
		return device.ErrNoValues
	}
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	parsed := make(schema.Values, len(in))
	for _, name := range names {
		f, ok := sc.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", schema.ErrUnknownField, sc.Name, name)
		}
		v, err := schema.FromAny(f.Kind, in[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		parsed[name] = v
	}
	for _, name := range names {
		if err := it.SetValue(name, parsed[name]); err != nil {
			return err
		}
	}
	return nil
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var terr *transport.Error
	switch {
	case errors.Is(err, surface.ErrNotConnected), errors.Is(err, surface.ErrNoPort):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, device.ErrNoValues):
		return http.StatusConflict
	case errors.Is(err, device.ErrNoSchema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schema.ErrUnknownField),
		errors.Is(err, schema.ErrInvalidValue),
		errors.Is(err, schema.ErrKindMismatch),
		errors.Is(err, protocol.ErrPayloadTooLarge):
		return http.StatusBadRequest
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
