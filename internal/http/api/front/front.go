// Package front registers the user-facing HTTP API.
package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/cache"
	"github.com/modelgate/modelgate/internal/chat"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/http/api/front/handlers"
	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
	"github.com/modelgate/modelgate/internal/providers"
	"github.com/modelgate/modelgate/internal/security"
	"github.com/modelgate/modelgate/internal/usage"
	"gorm.io/gorm"
)

// Deps bundles the services behind the front API.
type Deps struct {
	DB          *gorm.DB
	Config      config.Config
	ClientCache *providers.ClientCache
	Chat        *chat.Service
	Rollups     *usage.Rollups
	Responses   *cache.ResponseCache
	Calculator  *pricing.Calculator
}

// RegisterFrontRoutes registers public and authenticated routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Config.Auth)
	front.POST("/register", authHandler.Register)
	front.POST("/login", authHandler.Login)
	front.POST("/reset-password", authHandler.ResetPassword)

	authed := front.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.Config.Auth))

	profileHandler := handlers.NewProfileHandler(deps.DB)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)
	authed.PUT("/profile/preferences", profileHandler.UpdatePreferences)

	providerHandler := handlers.NewProviderHandler(deps.DB)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:id/models", providerHandler.ListModels)

	credentialHandler := handlers.NewCredentialHandler(deps.DB, deps.ClientCache)
	authed.GET("/credentials", credentialHandler.List)
	authed.POST("/credentials", credentialHandler.Create)
	authed.PUT("/credentials/:id", credentialHandler.Update)
	authed.DELETE("/credentials/:id", credentialHandler.Delete)

	preferenceHandler := handlers.NewPreferenceHandler(deps.DB)
	authed.GET("/preferences", preferenceHandler.List)
	authed.POST("/preferences", preferenceHandler.Create)
	authed.PUT("/preferences/:id", preferenceHandler.Update)
	authed.DELETE("/preferences/:id", preferenceHandler.Delete)

	categoryHandler := handlers.NewCategoryHandler(deps.DB)
	authed.GET("/categories", categoryHandler.List)
	authed.POST("/categories", categoryHandler.Create)
	authed.PUT("/categories/:id", categoryHandler.Update)
	authed.DELETE("/categories/:id", categoryHandler.Delete)

	promptHandler := handlers.NewPromptHandler(deps.DB)
	authed.GET("/prompts", promptHandler.List)
	authed.POST("/prompts", promptHandler.Create)
	authed.PUT("/prompts/:id", promptHandler.Update)
	authed.DELETE("/prompts/:id", promptHandler.Delete)
	authed.POST("/prompts/:id/favorite", promptHandler.ToggleFavorite)

	threadHandler := handlers.NewThreadHandler(deps.DB, deps.Chat)
	authed.GET("/threads", threadHandler.List)
	authed.POST("/threads", threadHandler.Create)
	authed.GET("/threads/:id", threadHandler.Get)
	authed.PUT("/threads/:id", threadHandler.Update)
	authed.DELETE("/threads/:id", threadHandler.Delete)
	authed.GET("/threads/:id/messages", threadHandler.ListMessages)
	authed.POST("/threads/:id/messages", threadHandler.SendMessage)
	authed.POST("/threads/:id/messages/stream", threadHandler.StreamMessage)

	chatHandler := handlers.NewChatHandler(deps.Chat)
	authed.POST("/chat/completions", chatHandler.Complete)
	authed.POST("/chat/tokens", chatHandler.CountTokens)

	statsHandler := handlers.NewStatisticsHandler(deps.Rollups, deps.Config.Billing.SubscriptionPriceUSD)
	authed.GET("/statistics/daily", statsHandler.ByDay)
	authed.GET("/statistics/models", statsHandler.ByModel)
	authed.GET("/statistics/providers", statsHandler.ByProvider)
	authed.GET("/statistics/summary", statsHandler.Summary)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, authCfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(authCfg.JWTSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
