package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"apex-preview/internal/pipeline"
	"apex-preview/internal/preview"
	"apex-preview/internal/publish"
	"apex-preview/internal/workspace"
)

// previewRequest carries either a raw response or explicit files.
type previewRequest struct {
	Response string               `json:"response"`
	Files    []workspace.FlatFile `json:"files"`
}

func (r previewRequest) empty() bool {
	return strings.TrimSpace(r.Response) == "" && len(r.Files) == 0
}

func (h *Handler) filesFrom(req previewRequest) (*workspace.Files, error) {
	if len(req.Files) > 0 {
		files, _, err := pipeline.FromFlat(req.Files)
		return files, err
	}
	parsed, err := pipeline.Parse(h.Parser, req.Response)
	if err != nil {
		return nil, err
	}
	return parsed.Files, nil
}

// Parse turns a response into steps and a file tree.
// POST /api/v1/parse
func (h *Handler) Parse(c *gin.Context) {
	var req struct {
		Response string `json:"response"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
		return
	}

	parsed, err := pipeline.Parse(h.Parser, req.Response)
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, "PATH_CONFLICT", err.Error())
		return
	}
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{
			"steps":    parsed.Result.Steps,
			"tree":     parsed.Tree.Nodes(),
			"files":    parsed.Files.List(),
			"strategy": parsed.Result.Strategy,
			"fallback": parsed.Result.Fallback(),
		},
	})
}

// ListSurfaces returns the status of every surface.
// GET /api/v1/surfaces
func (h *Handler) ListSurfaces(c *gin.Context) {
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: h.Preview.Host.Surfaces()})
}

// GetSurface returns one surface's status. Unknown surfaces are idle.
// GET /api/v1/surfaces/:surface
func (h *Handler) GetSurface(c *gin.Context) {
	status, _ := h.Preview.Host.Status(c.Param("surface"))
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: status})
}

// PreviewSurface delivers a new file set to a surface.
// POST /api/v1/surfaces/:surface/preview
func (h *Handler) PreviewSurface(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
		return
	}
	files, err := h.filesFrom(req)
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, "PATH_CONFLICT", err.Error())
		return
	}
	h.update(c, c.Param("surface"), files)
}

func (h *Handler) update(c *gin.Context, surface string, files *workspace.Files) {
	status, err := h.Preview.Host.Update(c.Request.Context(), surface, files)
	if err != nil {
		h.previewError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: status})
}

// CloseSurface tears a surface down.
// DELETE /api/v1/surfaces/:surface
func (h *Handler) CloseSurface(c *gin.Context) {
	if err := h.Preview.Host.Close(c.Param("surface")); err != nil {
		h.log.Warn("close surface", zap.String("surface", c.Param("surface")), zap.Error(err))
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Message: "Surface closed"})
}

// SurfaceWebSocket streams reload notifications for a surface.
// GET /api/v1/surfaces/:surface/ws
func (h *Handler) SurfaceWebSocket(c *gin.Context) {
	if err := h.Preview.Hub.ServeWS(c.Writer, c.Request, c.Param("surface")); err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
	}
}

// PublishSurface publishes the surface's live bundle, or the bundle of the
// files in the request body when one is given.
// POST /api/v1/surfaces/:surface/publish
func (h *Handler) PublishSurface(c *gin.Context) {
	if h.Publisher == nil {
		fail(c, http.StatusServiceUnavailable, "PUBLISH_DISABLED", "No publish target configured")
		return
	}
	surface := c.Param("surface")

	var req previewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
			return
		}
	}

	var res *publish.Result
	if req.empty() {
		b, ok := h.Preview.Host.Bundle(surface)
		if !ok {
			fail(c, http.StatusConflict, "NOTHING_TO_PUBLISH", "Surface has no live bundle")
			return
		}
		var err error
		if res, err = publish.Publish(c.Request.Context(), h.Publisher, surface, b); err != nil {
			fail(c, http.StatusBadGateway, "PUBLISH_FAILED", err.Error())
			return
		}
	} else {
		files, err := h.filesFrom(req)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, "PATH_CONFLICT", err.Error())
			return
		}
		build, err := h.Service.Build(c.Request.Context(), files)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, "SYNTHESIS_FAILED", err.Error())
			return
		}
		if res, err = publish.Publish(c.Request.Context(), h.Publisher, surface, build.Bundle); err != nil {
			fail(c, http.StatusBadGateway, "PUBLISH_FAILED", err.Error())
			return
		}
	}

	h.recordPublication(c, "", surface, res)
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: res})
}

// ServePreview serves a registered artifact behind a signed token.
// GET /preview/:token/*asset
func (h *Handler) ServePreview(c *gin.Context) {
	asset := c.Param("asset")
	artifactID, surface, err := h.Preview.Signer.Verify(c.Param("token"))
	if err != nil {
		msg := "Invalid preview link"
		if errors.Is(err, preview.ErrLinkExpired) {
			msg = "Preview link expired"
		}
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(preview.NotFoundPage(msg, asset)))
		return
	}

	artifact, err := h.Preview.Registry.Lookup(artifactID)
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(preview.NotFoundPage("Preview replaced", asset)))
		return
	}

	res, ok := artifact.Resolve(asset, "/api/v1/surfaces/"+surface+"/ws")
	if !ok {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(preview.NotFoundPage("File not found", asset)))
		return
	}
	c.Data(http.StatusOK, res.ContentType, []byte(res.Content))
}
