package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thiemotorres/spawn/internal/app"
	"github.com/thiemotorres/spawn/internal/model"
)

// AgentConfigHandler handles HTTP requests for agent configs.
type AgentConfigHandler struct {
	service *app.Service
}

// NewAgentConfigHandler creates a new AgentConfigHandler.
func NewAgentConfigHandler(service *app.Service) *AgentConfigHandler {
	return &AgentConfigHandler{service: service}
}

// AgentConfigRequest is the body for creating or updating an agent config.
type AgentConfigRequest struct {
	Name    string   `json:"name" binding:"required"`
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
}

// List handles GET /api/agent-configs.
func (h *AgentConfigHandler) List(c *gin.Context) {
	configs, err := h.service.ListAgentConfigs(c.Request.Context())
	if err != nil {
		sendCommandError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

// Create handles POST /api/agent-configs.
func (h *AgentConfigHandler) Create(c *gin.Context) {
	var req AgentConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	cfg := &model.AgentConfig{Name: req.Name, Command: req.Command, Args: req.Args}
	if err := h.service.AddAgentConfig(c.Request.Context(), cfg); err != nil {
		sendCommandError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Update handles PUT /api/agent-configs/:id.
func (h *AgentConfigHandler) Update(c *gin.Context) {
	var req AgentConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	cfg := &model.AgentConfig{ID: c.Param("id"), Name: req.Name, Command: req.Command, Args: req.Args}
	if err := h.service.UpdateAgentConfig(c.Request.Context(), cfg); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/agent-configs/:id.
func (h *AgentConfigHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteAgentConfig(c.Request.Context(), c.Param("id")); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDefault handles POST /api/agent-configs/:id/default.
func (h *AgentConfigHandler) SetDefault(c *gin.Context) {
	if err := h.service.SetDefaultAgentConfig(c.Request.Context(), c.Param("id")); err != nil {
		sendCommandError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the agent config routes on a Gin router group.
func (h *AgentConfigHandler) RegisterRoutes(rg *gin.RouterGroup) {
	configs := rg.Group("/agent-configs")
	{
		configs.GET("", h.List)
		configs.POST("", h.Create)
		configs.PUT("/:id", h.Update)
		configs.DELETE("/:id", h.Delete)
		configs.POST("/:id/default", h.SetDefault)
	}
}
