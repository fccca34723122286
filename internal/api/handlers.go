package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-listener-manager/internal/configstore"
	"github.com/sirosfoundation/go-listener-manager/internal/domain"
	"github.com/sirosfoundation/go-listener-manager/internal/supervisor"
	"github.com/sirosfoundation/go-listener-manager/internal/websocket"
)

// Handlers contains the admin API handlers
type Handlers struct {
	registry *supervisor.Registry
	store    configstore.Store
	hub      *websocket.Hub
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(registry *supervisor.Registry, store configstore.Store, hub *websocket.Hub, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		store:    store,
		hub:      hub,
		logger:   logger.Named("handlers"),
	}
}

// ServerRequest is the request body for opening a server
type ServerRequest struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Mode      string `json:"mode,omitempty"`
	StaticDir string `json:"static_dir,omitempty"`
}

// ServerResponse represents an active server in API responses
type ServerResponse struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Mode      string `json:"mode"`
	StaticDir string `json:"static_dir,omitempty"`
	LogFile   string `json:"log_file"`
}

// LogsResponse is the response of the log listing endpoint
type LogsResponse struct {
	Port  int      `json:"port"`
	Query string   `json:"query,omitempty"`
	Count int      `json:"count"`
	Lines []string `json:"lines"`
}

// PathRequest is the request body of the log export and import endpoints
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *Handlers) serverToResponse(d domain.ServerDescriptor) ServerResponse {
	return ServerResponse{
		Name:      d.Name,
		Port:      d.Port,
		Mode:      string(d.Mode),
		StaticDir: d.StaticDir,
		LogFile:   h.registry.LogPath(d.Port),
	}
}

// parsePort reads the :port path parameter, answering 400 when it is invalid
func parsePort(c *gin.Context) (int, bool) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil || port < domain.MinPort || port > domain.MaxPort {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid port"})
		return 0, false
	}
	return port, true
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "ok",
		Service:       ServiceName,
		APIVersion:    CurrentAPIVersion,
		Capabilities:  APICapabilities[CurrentAPIVersion],
		ActiveServers: h.registry.Len(),
		EventClients:  clients,
	})
}

// ListServers returns the active servers in the order they were opened
// GET /api/servers
func (h *Handlers) ListServers(c *gin.Context) {
	servers := h.registry.List()
	response := make([]ServerResponse, len(servers))
	for i, d := range servers {
		response[i] = h.serverToResponse(d)
	}
	c.JSON(http.StatusOK, gin.H{"servers": response})
}

// GetServer returns one active server
// GET /api/servers/:port
func (h *Handlers) GetServer(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}
	desc, found := h.registry.Get(port)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}
	c.JSON(http.StatusOK, h.serverToResponse(desc))
}

// OpenServer starts a new server
// POST /api/servers
func (h *Handlers) OpenServer(c *gin.Context) {
	var req ServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc := domain.ServerDescriptor{
		Name:      req.Name,
		Port:      req.Port,
		Mode:      mode,
		StaticDir: req.StaticDir,
	}

	if err := h.registry.Open(desc); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidDescriptor):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrDuplicatePort), errors.Is(err, domain.ErrBindFailed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to open server", zap.Error(err), zap.Int("port", req.Port))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open server"})
		}
		return
	}

	c.JSON(http.StatusCreated, h.serverToResponse(desc))
}

// CloseServer stops and removes a server
// DELETE /api/servers/:port
func (h *Handlers) CloseServer(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}

	if err := h.registry.Close(c.Request.Context(), port); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
			return
		}
		// The server has been force-closed and removed
		h.logger.Warn("Server closed with errors", zap.Error(err), zap.Int("port", port))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetLogs returns the log lines of a server, optionally filtered by q
// GET /api/servers/:port/logs
func (h *Handlers) GetLogs(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}
	query := c.Query("q")

	lines, err := h.registry.FilterLogs(port, query)
	if err != nil {
		h.logError(c, err, port, "Failed to read logs")
		return
	}

	c.JSON(http.StatusOK, LogsResponse{Port: port, Query: query, Count: len(lines), Lines: lines})
}

// ClearLogs empties the log of a server. Requires confirm=true.
// DELETE /api/servers/:port/logs
func (h *Handlers) ClearLogs(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}
	if confirm, _ := strconv.ParseBool(c.Query("confirm")); !confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Clearing logs requires confirm=true"})
		return
	}

	if err := h.registry.ClearLogs(port); err != nil {
		h.logError(c, err, port, "Failed to clear logs")
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportLogs copies the on-disk log of a server to a path on the manager host.
// When a transfer directory is configured the path must stay inside it.
// POST /api/servers/:port/logs/export
func (h *Handlers) ExportLogs(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	if err := h.registry.ExportLogs(port, req.Path); err != nil {
		h.logError(c, err, port, "Failed to export logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"port": port, "path": req.Path})
}

// ImportLogs replaces the displayed log of a server with the lines of a file
// POST /api/servers/:port/logs/import
func (h *Handlers) ImportLogs(c *gin.Context) {
	port, ok := parsePort(c)
	if !ok {
		return
	}
	var req PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	n, err := h.registry.ImportLogs(port, req.Path)
	if err != nil {
		h.logError(c, err, port, "Failed to import logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"port": port, "path": req.Path, "lines": n})
}

// SaveConfig persists the active servers
// POST /api/config/save
func (h *Handlers) SaveConfig(c *gin.Context) {
	servers := h.registry.List()
	if err := h.store.Save(c.Request.Context(), servers); err != nil {
		h.logger.Error("Failed to save server config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save server config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(servers)})
}

// Events upgrades to a WebSocket streaming request events
// GET /api/events
func (h *Handlers) Events(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream not available"})
		return
	}
	h.hub.HandleConnection(c.Writer, c.Request)
}

// logError maps log operation errors to responses
func (h *Handlers) logError(c *gin.Context, err error, port int, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
	case errors.Is(err, domain.ErrLogNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrLogNotFound.Error()})
	case errors.Is(err, domain.ErrPathNotAllowed), errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err), zap.Int("port", port))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
