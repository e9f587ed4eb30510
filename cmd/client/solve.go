package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/adapter/report"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

func newSolveCmd(g *globals) *cobra.Command {
	var (
		input         string
		workers       int
		maxCandidates uint64
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "solve a challenge locally and print the reconciled result",
		Long: `Reads a challenge JSON from --challenge (inline, file, or "-" for stdin).
For example:
			powctl solve --challenge challenge.json --timeout 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch entity.ChallengeParameters
			if err := readJSON(cmd, input, &ch); err != nil {
				return err
			}
			log := g.logger(cmd)

			solver := service.NewSolver(log,
				service.WithWorkers(workers),
				service.WithMaxCandidates(maxCandidates),
			)
			orch := service.NewOrchestrator(log, solver, report.NewWriter(cmd.OutOrStdout()),
				service.WithBudget(timeout))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h, err := orch.Issue(ctx, ch)
			if err != nil {
				return err
			}
			log.Info("solving", "id", h.ID.String(), "workers", solver.Workers(), "difficulty", ch.Difficulty)

			// The cycle always ends: by result, budget, or signal.
			<-h.Done()
			return outcomeErr(h.Outcome())
		},
	}
	cmd.Flags().StringVarP(&input, "challenge", "c", "-", "challenge JSON: inline, file path, or - for stdin")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "solver goroutines (0 = logical CPUs)")
	cmd.Flags().Uint64Var(&maxCandidates, "max-candidates", 0, "give up after this many candidates (0 = unbounded)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", service.DefaultSolveBudget, "solve budget")
	return cmd
}

func outcomeErr(out service.Outcome) error {
	switch out.Status {
	case service.StatusReported:
		return nil
	case service.StatusNoSolution:
		return fmt.Errorf("no solution: %s after %d attempts", out.Reason, out.Attempts)
	case service.StatusCancelled:
		return errors.New("cancelled")
	case service.StatusReportFailed:
		return fmt.Errorf("report failed: %w", out.Err)
	default:
		return fmt.Errorf("unexpected status %s", out.Status)
	}
}
