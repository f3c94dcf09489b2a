package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thiemotorres/spawn/internal/app"
)

// SessionHandler handles HTTP requests for session commands.
type SessionHandler struct {
	service *app.Service
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *app.Service) *SessionHandler {
	return &SessionHandler{service: service}
}

// SpawnAgentRequest is the body of POST /api/sessions/agent.
type SpawnAgentRequest struct {
	SessionID     string   `json:"session_id"`
	ProjectID     string   `json:"project_id" binding:"required"`
	ProjectPath   string   `json:"project_path"`
	Name          string   `json:"name"`
	Command       string   `json:"command"`
	Args          []string `json:"args"`
	AgentConfigID string   `json:"agent_config_id"`
}

// SpawnShellRequest is the body of POST /api/sessions/shell.
type SpawnShellRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Cwd       string `json:"cwd"`
}

// RenameRequest is the body of PATCH /api/sessions/:id.
type RenameRequest struct {
	Name string `json:"name" binding:"required"`
}

// InputRequest is the body of POST /api/sessions/:id/input. Data is base64
// encoded raw bytes; Text is sent as-is. Exactly one should be set.
type InputRequest struct {
	Data []byte `json:"data"`
	Text string `json:"text"`
}

// ResizeRequest is the body of POST /api/sessions/:id/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols" binding:"required"`
	Rows uint16 `json:"rows" binding:"required"`
}

// SpawnAgent handles POST /api/sessions/agent.
func (h *SessionHandler) SpawnAgent(c *gin.Context) {
	var req SpawnAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	record, err := h.service.SpawnAgent(c.Request.Context(), app.AgentRequest{
		SessionID:     req.SessionID,
		ProjectID:     req.ProjectID,
		ProjectPath:   req.ProjectPath,
		Name:          req.Name,
		Command:       req.Command,
		Args:          req.Args,
		AgentConfigID: req.AgentConfigID,
	})
	if err != nil {
		sendCommandError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// SpawnShell handles POST /api/sessions/shell. Spawning over a running
// shell is a no-op.
func (h *SessionHandler) SpawnShell(c *gin.Context) {
	var req SpawnShellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.SpawnShell(c.Request.Context(), req.SessionID, req.Cwd); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListByProject handles GET /api/projects/:project_id/sessions.
func (h *SessionHandler) ListByProject(c *gin.Context) {
	records, err := h.service.ListSessions(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		sendCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	info, err := h.service.SessionInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Rename handles PATCH /api/sessions/:id.
func (h *SessionHandler) Rename(c *gin.Context) {
	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.Rename(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Input handles POST /api/sessions/:id/input.
func (h *SessionHandler) Input(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	data := req.Data
	if len(data) == 0 {
		data = []byte(req.Text)
	}
	if len(data) == 0 {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "data or text is required")
		return
	}

	if err := h.service.Write(c.Param("id"), data); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resize handles POST /api/sessions/:id/resize. Unknown sessions are
// ignored.
func (h *SessionHandler) Resize(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	if err := h.service.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/sessions/:id. Unknown sessions are ignored.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Kill(c.Request.Context(), c.Param("id")); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Scrollback handles GET /api/sessions/:id/scrollback. A session that never
// existed has an empty scrollback.
func (h *SessionHandler) Scrollback(c *gin.Context) {
	data, err := h.service.Scrollback(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendCommandError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("/agent", h.SpawnAgent)
		sessions.POST("/shell", h.SpawnShell)
		sessions.GET("/:id", h.Get)
		sessions.PATCH("/:id", h.Rename)
		sessions.DELETE("/:id", h.Delete)
		sessions.POST("/:id/input", h.Input)
		sessions.POST("/:id/resize", h.Resize)
		sessions.GET("/:id/scrollback", h.Scrollback)
	}
	rg.GET("/projects/:project_id/sessions", h.ListByProject)
}
