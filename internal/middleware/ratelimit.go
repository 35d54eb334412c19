package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/metrics"
	"github.com/temcen/reelrank/pkg/models"
)

type Limiter interface {
	IsAllowed(ctx context.Context, userID, userTier string) (bool, *models.RateLimitInfo, error)
}

func RateLimit(limiter Limiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, userTier := GetUserFromContext(c)
		if userID == "" {
			logger.Error("Rate limit middleware called without user context")
			c.Next()
			return
		}
		if userTier == "" {
			userTier = "free"
		}

		allowed, info, err := limiter.IsAllowed(c.Request.Context(), userID, userTier)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"user_id":   userID,
				"user_tier": userTier,
				"limit":     info.Limit,
			}).Warn("Rate limit exceeded")
			metrics.RateLimited.WithLabelValues(userTier).Inc()

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			return
		}

		c.Next()
	}
}
