package middleware

import (
	"time"

	"llm-chatbot/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader, SessionIDHeader}
)

// CORSMiddleware allows the origins in CORS_ORIGINS. A "*" entry allows every
// origin and echoes it back, with credentials disabled. Requests from any
// other origin are rejected with 403.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if cfg.AllowAllOrigins() {
		corsCfg.AllowOriginFunc = func(string) bool { return true }
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowWildcard = true
		corsCfg.AllowCredentials = true
	}

	return cors.New(corsCfg)
}
