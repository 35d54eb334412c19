package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/middleware"
	"github.com/temcen/reelrank/pkg/models"
)

type PageService interface {
	GetPage(ctx context.Context, req models.PageRequest) (*models.ReelPage, error)
	GetItemByID(ctx context.Context, itemID, dialect, lang, userID string) (*models.Reel, error)
}

type EngagementRecorder interface {
	RecordAction(ctx context.Context, userID, itemID, dialect string, action models.Action) (*models.ActionResponse, error)
	RecordWatchProgress(ctx context.Context, userID, itemID, dialect string, watchDuration, totalDuration float64, at time.Time) (int, error)
}

type pageQuery struct {
	Dialect string `form:"dialect" validate:"required,min=2,max=16"`
	Lang    string `form:"lang" validate:"max=35"`
	Cursor  string `form:"cursor" validate:"max=64"`
}

type ReelHandler struct {
	logger     *logrus.Logger
	pages      PageService
	engagement EngagementRecorder
	validator  *validator.Validate
}

func NewReelHandler(logger *logrus.Logger, pages PageService, engagement EngagementRecorder) *ReelHandler {
	return &ReelHandler{
		logger:     logger,
		pages:      pages,
		engagement: engagement,
		validator:  validator.New(),
	}
}

func (h *ReelHandler) bindQuery(c *gin.Context) (pageQuery, bool) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, "INVALID_REQUEST", err)
		return q, false
	}
	if err := h.validator.Struct(&q); err != nil {
		respondValidation(c, "VALIDATION_FAILED", err)
		return q, false
	}
	if q.Lang == "" {
		q.Lang = c.GetHeader("Accept-Language")
	}
	return q, true
}

// GetPage serves GET /reels.
func (h *ReelHandler) GetPage(c *gin.Context) {
	q, ok := h.bindQuery(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserFromContext(c)

	page, err := h.pages.GetPage(c.Request.Context(), models.PageRequest{
		UserID:  userID,
		Dialect: q.Dialect,
		Lang:    q.Lang,
		Cursor:  q.Cursor,
	})
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"dialect": q.Dialect,
		}).Error("Failed to assemble page")
		respondError(c, http.StatusInternalServerError, "PAGE_FAILED", "Failed to load reels")
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetItem serves GET /reels/:itemId.
func (h *ReelHandler) GetItem(c *gin.Context) {
	q, ok := h.bindQuery(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserFromContext(c)
	itemID := c.Param("itemId")

	item, err := h.pages.GetItemByID(c.Request.Context(), itemID, q.Dialect, q.Lang, userID)
	if err != nil {
		if respondServiceError(c, err) {
			return
		}
		h.logger.WithError(err).WithField("item_id", itemID).Error("Failed to load item")
		respondError(c, http.StatusInternalServerError, "ITEM_FAILED", "Failed to load item")
		return
	}

	c.JSON(http.StatusOK, item)
}

// RecordAction serves POST /reels/:itemId/actions.
func (h *ReelHandler) RecordAction(c *gin.Context) {
	var req models.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "INVALID_REQUEST", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidation(c, "VALIDATION_FAILED", err)
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	itemID := c.Param("itemId")

	resp, err := h.engagement.RecordAction(c.Request.Context(), userID, itemID, req.Dialect, req.Action)
	if err != nil {
		if respondServiceError(c, err) {
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"item_id": itemID,
			"action":  req.Action,
		}).Error("Failed to record action")
		respondError(c, http.StatusInternalServerError, "ACTION_FAILED", "Failed to record action")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RecordProgress serves POST /reels/:itemId/progress.
func (h *ReelHandler) RecordProgress(c *gin.Context) {
	var req models.WatchProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "INVALID_REQUEST", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidation(c, "VALIDATION_FAILED", err)
		return
	}

	userID, _ := middleware.GetUserFromContext(c)
	itemID := c.Param("itemId")

	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	delta, err := h.engagement.RecordWatchProgress(c.Request.Context(), userID, itemID, req.Dialect,
		req.WatchDuration, req.TotalDuration, at)
	if err != nil {
		if respondServiceError(c, err) {
			return
		}
		h.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"item_id": itemID,
		}).Error("Failed to record watch progress")
		respondError(c, http.StatusInternalServerError, "PROGRESS_FAILED", "Failed to record watch progress")
		return
	}

	c.JSON(http.StatusOK, models.ProgressResponse{ItemID: itemID, EngagementDelta: delta})
}
