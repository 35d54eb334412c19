package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temcen/reelrank/internal/catalog"
	"github.com/temcen/reelrank/internal/engagement"
	"github.com/temcen/reelrank/internal/messaging"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondValidation(c *gin.Context, code string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": "Request validation failed",
			"details": err.Error(),
		},
	})
}

// respondServiceError maps typed service errors to their HTTP form and
// reports whether err was one of them.
func respondServiceError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, catalog.ErrItemNotFound):
		respondError(c, http.StatusNotFound, "ITEM_NOT_FOUND", "Item not found")
	case errors.Is(err, engagement.ErrInvalidAction):
		respondError(c, http.StatusBadRequest, "INVALID_ACTION", "Action must be one of view, like, share")
	case errors.Is(err, messaging.ErrUnknownJob):
		respondError(c, http.StatusNotFound, "UNKNOWN_JOB", "Unknown job")
	default:
		return false
	}
	return true
}
