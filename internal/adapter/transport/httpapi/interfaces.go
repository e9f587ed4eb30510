package httpapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

//go:generate mockgen -source=interfaces.go -destination=./api_mock.go -package=httpapi

type Orchestrator interface {
	Issue(ctx context.Context, ch entity.ChallengeParameters) (*service.Handle, error)
	Cancel(id uuid.UUID) bool
	InFlight() []uuid.UUID
	Running() int
	Registry() metrics.Registry
}
