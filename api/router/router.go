package router

import (
	"conversion-relay/api/handlers"
	"conversion-relay/api/middleware"
	"conversion-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(logger *logger.Logger, forwarder handlers.Forwarder, catalog map[string]any) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS())

	// Health check endpoint (no body validation)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Metrics endpoint for Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	trackHandler := handlers.NewTrackHandler(logger.Desugar(), forwarder, catalog)
	router.POST("/track", middleware.ValidatePayload(), trackHandler.HandleTrack)

	logger.Desugar().Info("Router configured")

	return router
}
