package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/pkg/models"
)

type TokenIssuer interface {
	ValidateAPIKey(apiKey string) (string, error)
	GenerateToken(ctx context.Context, userID, apiKey, userTier string) (*models.AuthResponse, error)
}

type AuthHandler struct {
	logger    *logrus.Logger
	issuer    TokenIssuer
	validator *validator.Validate
}

func NewAuthHandler(logger *logrus.Logger, issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		issuer:    issuer,
		validator: validator.New(),
	}
}

// Token exchanges an API key for a session token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "INVALID_REQUEST", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidation(c, "VALIDATION_FAILED", err)
		return
	}

	tier, err := h.issuer.ValidateAPIKey(req.APIKey)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
		return
	}

	resp, err := h.issuer.GenerateToken(c.Request.Context(), req.UserID, req.APIKey, tier)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to issue token")
		respondError(c, http.StatusInternalServerError, "TOKEN_FAILED", "Failed to issue token")
		return
	}

	c.JSON(http.StatusOK, resp)
}
