package tcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

//go:generate mockgen -source=interfaces.go -destination=./server_mock.go -package=tcp

type Orchestrator interface {
	Issue(ctx context.Context, ch entity.ChallengeParameters) (*service.Handle, error)
	Cancel(id uuid.UUID) bool
}
