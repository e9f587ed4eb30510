package service

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

const (
	// hashrateBatch is how many hashes a worker accumulates before marking the meter.
	hashrateBatch = 0x7FFF
	// ctxCheckMask sets how often a worker looks at ctx.
	ctxCheckMask = 0x3FF
)

// ParallelSolver enumerates integer candidates 0,1,2,... across worker goroutines.
// Worker w tests candidates c with c%workers == w and stops once c passes the best
// hit, so the result is always the smallest satisfying candidate.
type ParallelSolver struct {
	log           *slog.Logger
	workers       int
	maxCandidates uint64
	hashrate      metrics.Meter
}

type SolverOption func(*ParallelSolver)

func WithWorkers(n int) SolverOption {
	return func(s *ParallelSolver) { s.workers = n }
}

// WithMaxCandidates caps the candidate space to [0, n). Zero means no cap.
func WithMaxCandidates(n uint64) SolverOption {
	return func(s *ParallelSolver) { s.maxCandidates = n }
}

func WithHashrate(m metrics.Meter) SolverOption {
	return func(s *ParallelSolver) {
		if m != nil {
			s.hashrate = m
		}
	}
}

func NewSolver(log *slog.Logger, opts ...SolverOption) *ParallelSolver {
	s := &ParallelSolver{log: log, hashrate: metrics.NilMeter{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers()
	}
	return s
}

func defaultWorkers() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (s *ParallelSolver) Workers() int { return s.workers }

func (s *ParallelSolver) Solve(ctx context.Context, ch entity.ChallengeParameters) entity.SolveResult {
	ch = ch.Normalize()
	hash, err := HasherFor(ch.Algo)
	if err != nil {
		s.log.Warn("solver rejected challenge", "err", err)
		return entity.NoSolution(entity.ReasonFault, 0)
	}

	limit := uint64(math.MaxUint64)
	if s.maxCandidates > 0 {
		limit = s.maxCandidates
	}
	stride := uint64(s.workers)
	if stride > limit {
		stride = limit
	}

	var (
		best     atomic.Uint64
		attempts atomic.Uint64
		mu       sync.Mutex
		bestSum  [32]byte
		wg       sync.WaitGroup
	)
	best.Store(math.MaxUint64)
	base := powBase(ch)

	for w := uint64(0); w < stride; w++ {
		wg.Add(1)
		go func(start uint64) {
			defer wg.Done()

			buf := make([]byte, len(base), len(base)+20)
			copy(buf, base)

			var n, unmarked int64
			defer func() {
				attempts.Add(uint64(n))
				s.hashrate.Mark(unmarked)
			}()

			for c := start; c < limit && c < best.Load(); c += stride {
				if n&ctxCheckMask == 0 && ctx.Err() != nil {
					return
				}
				sum := hash(strconv.AppendUint(buf[:len(base)], c, 10))
				n++
				unmarked++
				if unmarked == hashrateBatch {
					s.hashrate.Mark(unmarked)
					unmarked = 0
				}

				if Satisfies(sum[:], ch.Difficulty, ch.Mode) {
					mu.Lock()
					if c < best.Load() {
						best.Store(c)
						bestSum = sum
					}
					mu.Unlock()
					return
				}
				if limit-c <= stride {
					return
				}
			}
		}(w)
	}
	wg.Wait()

	total := attempts.Load()
	if b := best.Load(); b != math.MaxUint64 {
		s.log.Debug("solution found", "solution", b, "attempts", total)
		return entity.SolutionFound(strconv.FormatUint(b, 10), hex.EncodeToString(bestSum[:]), total)
	}

	reason := entity.ReasonSpaceExhausted
	if err := ctx.Err(); err != nil {
		reason = entity.ReasonCancelled
		if errors.Is(err, context.DeadlineExceeded) {
			reason = entity.ReasonBudgetExhausted
		}
	}
	s.log.Debug("no solution", "reason", reason, "attempts", total)
	return entity.NoSolution(reason, total)
}
