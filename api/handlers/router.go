package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thiemotorres/spawn/internal/app"
	"github.com/thiemotorres/spawn/internal/ws"
)

// NewRouter builds the API engine for service.
func NewRouter(service *app.Service, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), ws.RequestLogger(logger), corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": service.Manager().Registry().Len(),
		})
	})

	api := r.Group("/api")
	{
		NewSessionHandler(service).RegisterRoutes(api)
		NewAgentConfigHandler(service).RegisterRoutes(api)
		NewEventsHandler(service).RegisterRoutes(api)
	}
	return r
}

// corsMiddleware allows the desktop webview to call the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
