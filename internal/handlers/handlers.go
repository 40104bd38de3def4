// Package handlers exposes the preview pipeline over HTTP: parsing, surface
// previews, stored projects, publishing and the signed preview documents.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"apex-preview/internal/bundler"
	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
	"apex-preview/internal/parser"
	"apex-preview/internal/preview"
	"apex-preview/internal/publish"
	"apex-preview/internal/store"
)

// Pinger is a backing service Health checks for reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// Handler contains all the dependencies for API handlers. Store and
// Publisher are optional; their routes answer 503 without them.
type Handler struct {
	Parser    *parser.Parser
	Service   *bundler.Service
	Preview   *preview.Stack
	Store     *store.Store
	Publisher publish.Publisher
	// Redis is the shared cache tier, reported by Health when set.
	Redis Pinger

	log *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(p *parser.Parser, service *bundler.Service, stack *preview.Stack, st *store.Store, pub publish.Publisher) *Handler {
	if p == nil {
		p = parser.New()
	}
	return &Handler{
		Parser:    p,
		Service:   service,
		Preview:   stack,
		Store:     st,
		Publisher: pub,
		log:       logging.Named("handlers"),
	}
}

// StandardResponse represents a standard API response
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RegisterRoutes mounts every route on r. previewMW wraps the preview
// document routes (security headers).
func (h *Handler) RegisterRoutes(r *gin.Engine, previewMW ...gin.HandlerFunc) {
	r.GET("/health", h.Health)
	r.GET("/metrics", metrics.PrometheusHandler())

	api := r.Group("/api/v1")
	{
		api.POST("/parse", h.Parse)

		surfaces := api.Group("/surfaces")
		surfaces.GET("", h.ListSurfaces)
		surfaces.GET("/:surface", h.GetSurface)
		surfaces.POST("/:surface/preview", h.PreviewSurface)
		surfaces.DELETE("/:surface", h.CloseSurface)
		surfaces.GET("/:surface/ws", h.SurfaceWebSocket)
		surfaces.POST("/:surface/publish", h.PublishSurface)

		projects := api.Group("/projects")
		projects.GET("", h.ListProjects)
		projects.PUT("/:name", h.SaveProject)
		projects.GET("/:name", h.GetProject)
		projects.DELETE("/:name", h.DeleteProject)
		projects.POST("/:name/preview", h.PreviewProject)
	}

	docs := r.Group("/preview", previewMW...)
	docs.GET("/:token/*asset", h.ServePreview)
}

// Health reports liveness plus the number of surfaces. An unreachable Redis
// marks the service degraded; previews still work from the memory cache.
func (h *Handler) Health(c *gin.Context) {
	data := gin.H{"status": "ok"}
	if h.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := h.Redis.Ping(ctx)
		cancel()
		if err != nil {
			h.log.Warn("redis health check failed", zap.Error(err))
			data["status"] = "degraded"
			data["redis"] = "unreachable"
		} else {
			data["redis"] = "ok"
		}
	}
	if h.Preview != nil {
		data["surfaces"] = len(h.Preview.Host.Surfaces())
		data["strategy"] = h.Preview.Host.Strategy().Name()
	}
	if h.Preview != nil && h.Preview.Runtime != nil {
		data["runtime"] = h.Preview.Runtime.State()
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, StandardResponse{Success: false, Error: msg, Code: code})
}

// previewError maps a Host.Update error to a response.
func (h *Handler) previewError(c *gin.Context, status preview.Status, err error) {
	switch {
	case errors.Is(err, preview.ErrStaleRun):
		fail(c, http.StatusConflict, "STALE_RUN", "superseded by a newer preview request")
	case errors.Is(err, preview.ErrSurfaceClosed):
		fail(c, http.StatusGone, "SURFACE_CLOSED", "surface was closed")
	default:
		c.JSON(http.StatusUnprocessableEntity, StandardResponse{
			Success: false,
			Data:    status,
			Error:   err.Error(),
			Code:    "PREVIEW_FAILED",
		})
	}
}
