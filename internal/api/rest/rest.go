package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes (public read access)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/phunks", handler.ListPhunks)
		v1.GET("/phunks/:hashId", handler.GetPhunk)
		v1.GET("/events", handler.ListEvents)
	}
}
