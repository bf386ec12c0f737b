package routes

import (
	"net/http"

	"llm-chatbot/internal/logger"
	"llm-chatbot/middleware"
	"llm-chatbot/models"
	"llm-chatbot/services"
	"llm-chatbot/utils"

	"github.com/gin-gonic/gin"
)

func SetupChatRoutes(router *gin.Engine, chat *services.ChatService) {
	router.POST("/chat", handleChat(chat))
	router.GET("/chat/history", handleHistory(chat))
}

// sessionID prefers the header over the body field.
func sessionID(c *gin.Context, fromBody string) string {
	if sid := c.GetHeader(middleware.SessionIDHeader); sid != "" {
		return sid
	}
	if fromBody != "" {
		return fromBody
	}
	return models.DefaultSessionID
}

func handleChat(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithAppError(c, utils.NewAppError(utils.KindInvalidInput, "Invalid request body", err))
			return
		}

		sid := sessionID(c, req.SessionID)
		response, err := chat.Chat(c.Request.Context(), sid, req.Prompt)
		if err != nil {
			if utils.KindOf(err) != utils.KindModelUnavailable {
				logger.Error("Chat request failed",
					"request_id", middleware.GetRequestID(c),
					"session_id", sid,
					"error", err,
				)
			}
			utils.RespondWithAppError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ChatResponse{Response: response})
	}
}

func handleHistory(chat *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := sessionID(c, c.Query("session_id"))
		entries, err := chat.History(c.Request.Context(), sid)
		if err != nil {
			logger.Error("History lookup failed", "request_id", middleware.GetRequestID(c), "session_id", sid, "error", err)
			utils.RespondWithAppError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ConversationHistory{
			SessionID: sid,
			Entries:   entries,
		})
	}
}
