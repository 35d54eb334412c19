package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/pkg/models"
)

type JobPublisher interface {
	Publish(ctx context.Context, name string, dialects []string) (models.ScoreJob, error)
}

// JobHandler triggers score recomputation passes.
type JobHandler struct {
	logger    *logrus.Logger
	publisher JobPublisher
	validator *validator.Validate
}

func NewJobHandler(logger *logrus.Logger, publisher JobPublisher) *JobHandler {
	return &JobHandler{
		logger:    logger,
		publisher: publisher,
		validator: validator.New(),
	}
}

// Trigger serves POST /admin/jobs/:job. The body is optional.
func (h *JobHandler) Trigger(c *gin.Context) {
	name := c.Param("job")
	if !models.KnownJob(name) {
		respondError(c, http.StatusNotFound, "UNKNOWN_JOB", "Unknown job")
		return
	}

	var req models.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondValidation(c, "INVALID_REQUEST", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		respondValidation(c, "VALIDATION_FAILED", err)
		return
	}

	job, err := h.publisher.Publish(c.Request.Context(), name, req.Dialects)
	if err != nil {
		if respondServiceError(c, err) {
			return
		}
		h.logger.WithError(err).WithField("job", name).Error("Failed to publish job")
		respondError(c, http.StatusServiceUnavailable, "JOB_PUBLISH_FAILED", "Failed to enqueue job")
		return
	}

	c.JSON(http.StatusAccepted, models.JobAccepted{
		JobID:  job.JobID,
		Name:   job.Name,
		Status: "queued",
	})
}
