package routes

import (
	"net/http"
	"time"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/config"
	"llm-chatbot/services"

	"github.com/gin-gonic/gin"
)

// SetupHealthRoutes registers the liveness endpoints. model may be nil.
func SetupHealthRoutes(router *gin.Engine, cfg *config.Config, chat *services.ChatService, model *ai.Model) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "LLM chatbot backend is running"})
	})

	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		device := ""
		if model != nil {
			device = string(model.Device)
		}
		if !chat.ModelLoaded() {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       status,
			"model_loaded": chat.ModelLoaded(),
			"mode":         cfg.Mode(),
			"device":       device,
			"timestamp":    time.Now(),
		})
	})
}
