package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/reelrank/internal/services"
)

type Handlers struct {
	Health *HealthHandler
	Reels  *ReelHandler
	Jobs   *JobHandler
	Auth   *AuthHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(logger, services.Health),
		Reels:  NewReelHandler(logger, services.Assembler, services.Engagement),
		Jobs:   NewJobHandler(logger, services.JobBus),
		Auth:   NewAuthHandler(logger, services.Auth),
	}
}
