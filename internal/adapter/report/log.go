package report

import (
	"context"
	"log/slog"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

// Log writes every reconciled result as one structured log record.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log { return &Log{log: log} }

func (l *Log) Report(ctx context.Context, res entity.ReconciledResult) error {
	l.log.LogAttrs(ctx, slog.LevelInfo, "pow result",
		slog.String("solution", res.Solution),
		slog.String("digest", res.Digest),
		slog.String("puzzle_seed", res.PuzzleSeed),
		slog.String("checksum", res.Checksum),
		slog.String("nonce_prefix", res.NoncePrefix),
		slog.Int("difficulty", res.Difficulty),
		slog.Int64("corrected_timestamp", res.CorrectedTimestamp),
		slog.Int64("drift", res.Drift),
	)
	return nil
}
