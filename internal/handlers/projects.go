package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"apex-preview/internal/filetree"
	"apex-preview/internal/pipeline"
	"apex-preview/internal/publish"
	"apex-preview/internal/repair"
	"apex-preview/internal/store"
	"apex-preview/pkg/models"
)

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.Store == nil {
		fail(c, http.StatusServiceUnavailable, "STORE_DISABLED", "No project store configured")
		return false
	}
	return true
}

// ListProjects returns stored projects without their files.
// GET /api/v1/projects
func (h *Handler) ListProjects(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	projects, err := h.Store.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list projects")
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: projects})
}

// SaveProject parses a response and stores it as a snapshot.
// PUT /api/v1/projects/:name
func (h *Handler) SaveProject(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.empty() {
		fail(c, http.StatusBadRequest, "INVALID_REQUEST", "A response or files are required")
		return
	}

	snap := store.Snapshot{Name: c.Param("name"), Response: req.Response}
	if len(req.Files) > 0 {
		files, _, err := pipeline.FromFlat(req.Files)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, "PATH_CONFLICT", err.Error())
			return
		}
		snap.Files = files
		snap.Strategy = "files"
	} else {
		parsed, err := pipeline.Parse(h.Parser, req.Response)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, "PATH_CONFLICT", err.Error())
			return
		}
		snap.Files = parsed.Files
		snap.Strategy = string(parsed.Result.Strategy)
	}
	if root, ok := repair.FindRoot(snap.Files); ok {
		snap.RootPath = root
	}

	project, err := h.Store.SaveSnapshot(c.Request.Context(), snap)
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: project})
}

// GetProject returns a stored project with its file tree.
// GET /api/v1/projects/:name
func (h *Handler) GetProject(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	name := c.Param("name")

	project, err := h.Store.Get(ctx, name)
	if err != nil {
		h.storeError(c, err)
		return
	}
	files, err := h.Store.LoadFiles(ctx, name)
	if err != nil {
		h.storeError(c, err)
		return
	}
	tree, err := filetree.FromWorkspace(files)
	if err != nil {
		fail(c, http.StatusInternalServerError, "PATH_CONFLICT", err.Error())
		return
	}
	pubs, err := h.Store.Publications(ctx, name)
	if err != nil {
		h.log.Warn("list publications", zap.String("project", name), zap.Error(err))
	}
	c.JSON(http.StatusOK, StandardResponse{
		Success: true,
		Data: gin.H{
			"project":      project,
			"tree":         tree.Nodes(),
			"files":        files.List(),
			"publications": pubs,
		},
	})
}

// DeleteProject removes a stored project.
// DELETE /api/v1/projects/:name
func (h *Handler) DeleteProject(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	if err := h.Store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Message: "Project deleted"})
}

// PreviewProject previews a stored snapshot on ?surface= (default: the
// project name).
// POST /api/v1/projects/:name/preview
func (h *Handler) PreviewProject(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	name := c.Param("name")
	files, err := h.Store.LoadFiles(c.Request.Context(), name)
	if err != nil {
		h.storeError(c, err)
		return
	}
	surface := c.DefaultQuery("surface", name)
	h.update(c, surface, files)
}

func (h *Handler) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrProjectNotFound) {
		fail(c, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found")
		return
	}
	fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
}

func (h *Handler) recordPublication(c *gin.Context, project, surface string, res *publish.Result) {
	if h.Store == nil || res == nil {
		return
	}
	if project == "" {
		project = surface
	}
	err := h.Store.RecordPublication(c.Request.Context(), &models.Publication{
		Project: project,
		Surface: surface,
		Target:  res.Target,
		URL:     res.URL,
		Hash:    res.Hash,
		Size:    res.Size,
	})
	if err != nil {
		h.log.Warn("record publication", zap.String("surface", surface), zap.Error(err))
	}
}
