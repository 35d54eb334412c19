package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/pkg/models"
)

// Context keys set by Auth.
const (
	ContextUserID   = "user_id"
	ContextUserTier = "user_tier"
	ContextAPIKey   = "api_key"
)

const maxUserIDLength = 64

type Authenticator interface {
	ValidateAPIKey(apiKey string) (string, error)
	ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error)
}

// Auth accepts "Bearer <jwt>" or "Bearer <api key>"; API key callers name the
// user in X-User-ID.
func Auth(authService Authenticator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		tokenString := tokenParts[1]

		// API keys carry no dots
		if !strings.Contains(tokenString, ".") {
			userTier, err := authService.ValidateAPIKey(tokenString)
			if err != nil {
				logger.WithError(err).Warn("Invalid API key")
				abort(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
				return
			}

			userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
			if len(userID) > maxUserIDLength {
				abort(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user ID format")
				return
			}
			if userID == "" {
				userID = uuid.New().String()
			}

			c.Set(ContextUserID, userID)
			c.Set(ContextUserTier, userTier)
			c.Set(ContextAPIKey, tokenString)
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserTier, claims.UserTier)
		c.Set(ContextAPIKey, claims.APIKey)
		c.Next()
	}
}

// RequireTier rejects callers whose tier is not listed. An empty list rejects
// everyone.
func RequireTier(logger *logrus.Logger, tiers ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		allowed[tier] = struct{}{}
	}
	return func(c *gin.Context) {
		userID, tier := GetUserFromContext(c)
		if _, ok := allowed[tier]; !ok {
			logger.WithFields(logrus.Fields{
				"user_id": userID,
				"tier":    tier,
				"path":    c.FullPath(),
			}).Warn("Tier not permitted")
			abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient tier for this resource")
			return
		}
		c.Next()
	}
}

// GetUserFromContext returns the authenticated user id and tier.
func GetUserFromContext(c *gin.Context) (string, string) {
	return c.GetString(ContextUserID), c.GetString(ContextUserTier)
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
