package service

import (
	"context"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

//go:generate mockgen -source=interfaces.go -destination=./service_mock.go -package=service

// Solver searches for a solution to one challenge. It must return exactly once,
// and return promptly after ctx is done.
type Solver interface {
	Solve(ctx context.Context, ch entity.ChallengeParameters) entity.SolveResult
}

type Reporter interface {
	Report(ctx context.Context, res entity.ReconciledResult) error
}
