// Package http implements the control surface: install and lifecycle
// endpoints over the app manager, plus health and metrics.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tembedos/runtime/internal/app"
	"github.com/tembedos/runtime/internal/permissions"
	"github.com/tembedos/runtime/internal/sandbox"
	"github.com/tembedos/runtime/internal/shared/errdefs"
)

// Handlers carries the collaborators the endpoints drive.
type Handlers struct {
	apps      *app.Manager
	sandboxes *sandbox.Manager
	log       *zap.Logger
}

// NewHandlers creates the endpoint set.
func NewHandlers(apps *app.Manager, sandboxes *sandbox.Manager, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{apps: apps, sandboxes: sandboxes, log: log}
}

// Root reports service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "app-runtime",
		"status":  "running",
	})
}

// Health reports liveness and headline stats.
func (h *Handlers) Health(c *gin.Context) {
	stats := h.apps.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"installed": stats.Installed,
		"running":   stats.Running,
		"sandboxes": h.sandboxes.Count(),
	})
}

type installRequest struct {
	Package string `json:"package" binding:"required"`
}

// InstallApp installs the package at the given path.
func (h *Handlers) InstallApp(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "package path required"})
		return
	}

	installed, err := h.apps.Install(req.Package)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, installed)
}

// ListApps returns installed app snapshots.
func (h *Handlers) ListApps(c *gin.Context) {
	apps := h.apps.List(0)
	c.JSON(http.StatusOK, gin.H{"apps": apps, "count": len(apps)})
}

// GetApp returns one app snapshot.
func (h *Handlers) GetApp(c *gin.Context) {
	record, err := h.apps.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// UninstallApp removes the app, its files and its grant.
func (h *Handlers) UninstallApp(c *gin.Context) {
	if err := h.apps.Uninstall(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uninstalled": true})
}

// StartApp starts the app.
func (h *Handlers) StartApp(c *gin.Context) {
	if err := h.apps.Start(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": true})
}

// StopApp stops the app.
func (h *Handlers) StopApp(c *gin.Context) {
	if err := h.apps.Stop(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// PauseApp pauses a running app.
func (h *Handlers) PauseApp(c *gin.Context) {
	if err := h.apps.Pause(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// ResumeApp resumes a paused app.
func (h *Handlers) ResumeApp(c *gin.Context) {
	if err := h.apps.Resume(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

// CurrentApp returns the app holding the current slot.
func (h *Handlers) CurrentApp(c *gin.Context) {
	record, ok := h.apps.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"current": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": record})
}

// GetPermissions returns the app's grant as permission names.
func (h *Handlers) GetPermissions(c *gin.Context) {
	record, err := h.apps.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"permissions": record.Permissions.String()})
}

type permissionRequest struct {
	Permissions string `json:"permissions" binding:"required"`
}

// GrantPermissions widens the app's grant by the named permissions.
func (h *Handlers) GrantPermissions(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permissions required"})
		return
	}

	if err := h.apps.GrantPermission(c.Param("id"), permissions.Parse(req.Permissions)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": true})
}

// RevokePermissions narrows the app's grant by the named permissions.
func (h *Handlers) RevokePermissions(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permissions required"})
		return
	}

	if err := h.apps.RevokePermission(c.Param("id"), permissions.Parse(req.Permissions)); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// GetStats returns registry statistics.
func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.apps.Stats())
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrNoCapacity):
		return http.StatusConflict
	case errors.Is(err, errdefs.ErrInvalidArgument),
		errors.Is(err, errdefs.ErrInvalidManifest),
		errors.Is(err, errdefs.ErrInvalidPackage),
		errors.Is(err, errdefs.ErrSizeExceeded):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
