package routes

import (
	"llm-chatbot/internal/config"
	"llm-chatbot/internal/telemetry"
	"llm-chatbot/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// NewRouter builds the engine with the shared middleware chain. rdb may be
// nil, in which case inbound rate limiting is off.
func NewRouter(cfg *config.Config, metrics *telemetry.Metrics, rdb *redis.Client) *gin.Engine {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.TracingMiddleware(cfg.ServiceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}
	return router
}
