package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

// DefaultSolveBudget matches the one-shot CLI timeout.
const DefaultSolveBudget = 60 * time.Second

// budgetGrace is how long a solver may take to answer after its budget ran out
// before the cycle ends without it.
const budgetGrace = 250 * time.Millisecond

var ErrClosed = errors.New("orchestrator closed")

type Status int

const (
	StatusPending Status = iota
	StatusReported
	StatusNoSolution
	StatusCancelled
	StatusReportFailed
)

func (s Status) String() string {
	switch s {
	case StatusReported:
		return "reported"
	case StatusNoSolution:
		return "no_solution"
	case StatusCancelled:
		return "cancelled"
	case StatusReportFailed:
		return "report_failed"
	default:
		return "pending"
	}
}

// Outcome is how one challenge cycle ended. Result is set for StatusReported and
// StatusReportFailed only.
type Outcome struct {
	Status   Status
	Result   *entity.ReconciledResult
	Attempts uint64
	Reason   entity.NoSolutionReason
	Err      error
}

// Handle tracks one issued challenge.
type Handle struct {
	ID         uuid.UUID
	Challenge  entity.ChallengeParameters
	LaunchedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Orchestrator.mu until done is closed
	status  Status
	outcome Outcome
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome is valid once Done is closed; before that it reports StatusPending.
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return Outcome{Status: StatusPending}
	}
}

func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{Status: StatusPending}, ctx.Err()
	}
}

type orchestratorMetrics struct {
	issued       metrics.Counter
	reported     metrics.Counter
	noSolution   metrics.Counter
	cancelled    metrics.Counter
	discarded    metrics.Counter
	reportFailed metrics.Counter
	inFlight     metrics.Gauge
	solveTime    metrics.Timer
}

func newOrchestratorMetrics(r metrics.Registry) orchestratorMetrics {
	return orchestratorMetrics{
		issued:       metrics.GetOrRegisterCounter("orchestrator.issued", r),
		reported:     metrics.GetOrRegisterCounter("orchestrator.reported", r),
		noSolution:   metrics.GetOrRegisterCounter("orchestrator.no_solution", r),
		cancelled:    metrics.GetOrRegisterCounter("orchestrator.cancelled", r),
		discarded:    metrics.GetOrRegisterCounter("orchestrator.discarded", r),
		reportFailed: metrics.GetOrRegisterCounter("orchestrator.report_failed", r),
		inFlight:     metrics.GetOrRegisterGauge("orchestrator.in_flight", r),
		solveTime:    metrics.GetOrRegisterTimer("orchestrator.solve_time", r),
	}
}

// Orchestrator runs challenge cycles: one solver goroutine per Issue, talking to it
// only over an inbound and an outbound channel.
type Orchestrator struct {
	log      *slog.Logger
	solver   Solver
	reporter Reporter
	budget   time.Duration
	now      func() time.Time
	registry metrics.Registry
	m        orchestratorMetrics

	mu      sync.Mutex
	pending map[uuid.UUID]*Handle
	closed  bool
	wg      sync.WaitGroup
	running atomic.Int64
}

type Option func(*Orchestrator)

// WithBudget sets the time a solver gets before its cycle ends with no solution.
func WithBudget(d time.Duration) Option {
	return func(o *Orchestrator) { o.budget = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRegistry(r metrics.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func NewOrchestrator(log *slog.Logger, solver Solver, reporter Reporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      log,
		solver:   solver,
		reporter: reporter,
		budget:   DefaultSolveBudget,
		now:      time.Now,
		pending:  make(map[uuid.UUID]*Handle),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.budget <= 0 {
		o.budget = DefaultSolveBudget
	}
	if o.registry == nil {
		o.registry = metrics.NewRegistry()
	}
	o.m = newOrchestratorMetrics(o.registry)
	return o
}

func (o *Orchestrator) Registry() metrics.Registry { return o.registry }

// Issue validates ch and starts a solver for it. Cancelling ctx cancels the challenge.
func (o *Orchestrator) Issue(ctx context.Context, ch entity.ChallengeParameters) (*Handle, error) {
	ch = ch.Normalize()
	if err := ValidateChallenge(ch); err != nil {
		return nil, err
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:        uuid.New(),
		Challenge: ch,
		ctx:       hctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	o.pending[h.ID] = h
	o.m.inFlight.Update(int64(len(o.pending)))
	o.wg.Add(1)
	o.mu.Unlock()

	in := make(chan entity.ChallengeParameters, 1)
	out := make(chan entity.SolveResult, 1)
	solveCtx, stopSolve := context.WithTimeout(hctx, o.budget)

	o.running.Add(1)
	go o.runSolver(solveCtx, in, out)

	h.LaunchedAt = o.now()
	in <- ch
	close(in)
	o.m.issued.Inc(1)
	o.log.Debug("challenge issued",
		"id", h.ID.String(),
		"difficulty", ch.Difficulty,
		"mode", string(ch.Mode),
		"issued_at", ch.IssuedAt,
	)

	go o.await(h, out, solveCtx, stopSolve)
	return h, nil
}

// runSolver is the solver's execution context. It owns nothing but its two channels.
func (o *Orchestrator) runSolver(ctx context.Context, in <-chan entity.ChallengeParameters, out chan<- entity.SolveResult) {
	defer o.running.Add(-1)

	ch, ok := <-in
	if !ok {
		out <- entity.NoSolution(entity.ReasonFault, 0)
		return
	}

	res := entity.NoSolution(entity.ReasonFault, 0)
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("solver panicked", "panic", fmt.Sprint(r))
			}
		}()
		res = o.solver.Solve(ctx, ch)
	}()
	out <- res
}

func (o *Orchestrator) await(h *Handle, out <-chan entity.SolveResult, solveCtx context.Context, stopSolve context.CancelFunc) {
	defer o.wg.Done()
	defer stopSolve()

	var res entity.SolveResult
	select {
	case res = <-out:
	case <-h.ctx.Done():
		o.finishCancelled(h)
		return
	case <-solveCtx.Done():
		if h.ctx.Err() != nil {
			o.finishCancelled(h)
			return
		}
		select {
		case res = <-out:
		case <-h.ctx.Done():
			o.finishCancelled(h)
			return
		case <-time.After(budgetGrace):
			// The solver ignored its deadline: end the cycle now, drop whatever it sends later.
			o.log.Warn("solver overran its budget", "id", h.ID.String(), "budget", o.budget.String())
			res = entity.NoSolution(entity.ReasonBudgetExhausted, 0)
			go o.discardLate(h, out)
		}
	}

	o.mu.Lock()
	if h.status != StatusPending || h.ctx.Err() != nil {
		o.mu.Unlock()
		o.m.discarded.Inc(1)
		o.log.Debug("late solver message discarded", "id", h.ID.String())
		o.finishCancelled(h)
		return
	}
	h.status = StatusReported
	o.untrackLocked(h)
	o.mu.Unlock()

	o.m.solveTime.UpdateSince(h.LaunchedAt)
	o.finish(h, o.reconcile(h, res))
}

func (o *Orchestrator) discardLate(h *Handle, out <-chan entity.SolveResult) {
	<-out
	o.m.discarded.Inc(1)
	o.log.Debug("late solver message discarded", "id", h.ID.String())
}

// reconcile pins the reported timestamp to the issuer's issued_at: drift measured
// against the local clock is subtracted back out.
func (o *Orchestrator) reconcile(h *Handle, res entity.SolveResult) Outcome {
	if !res.Found() {
		o.m.noSolution.Inc(1)
		o.log.Info("no solution", "id", h.ID.String(), "reason", string(res.Reason), "attempts", res.Attempts)
		return Outcome{Status: StatusNoSolution, Attempts: res.Attempts, Reason: res.Reason}
	}

	tNow := o.now().Unix()
	drift := tNow - h.Challenge.IssuedAt
	rr := entity.ReconciledResult{
		Solution:           res.Solution,
		Digest:             res.Digest,
		PuzzleSeed:         h.Challenge.PuzzleSeed,
		Checksum:           h.Challenge.Checksum,
		NoncePrefix:        h.Challenge.NoncePrefix,
		Difficulty:         h.Challenge.Difficulty,
		Mode:               h.Challenge.Mode,
		Algo:               h.Challenge.Algo,
		CorrectedTimestamp: tNow - drift,
		Drift:              drift,
	}

	// The reporter gets its own context: the handle context may be cancelled by
	// the caller as soon as it sees the cycle finish.
	if err := o.reporter.Report(context.WithoutCancel(h.ctx), rr); err != nil {
		o.m.reportFailed.Inc(1)
		o.log.Error("report failed", "id", h.ID.String(), "err", err)
		return Outcome{Status: StatusReportFailed, Result: &rr, Attempts: res.Attempts, Err: err}
	}
	o.m.reported.Inc(1)
	o.log.Info("result reported", "id", h.ID.String(), "drift", drift, "attempts", res.Attempts)
	return Outcome{Status: StatusReported, Result: &rr, Attempts: res.Attempts}
}

func (o *Orchestrator) finishCancelled(h *Handle) {
	o.mu.Lock()
	first := h.status == StatusPending
	h.status = StatusCancelled
	o.untrackLocked(h)
	o.mu.Unlock()
	if first {
		o.m.cancelled.Inc(1)
		o.log.Info("challenge cancelled", "id", h.ID.String())
	}
	o.finish(h, Outcome{Status: StatusCancelled, Reason: entity.ReasonCancelled})
}

func (o *Orchestrator) finish(h *Handle, out Outcome) {
	h.outcome = out
	h.cancel()
	close(h.done)
}

func (o *Orchestrator) untrackLocked(h *Handle) {
	delete(o.pending, h.ID)
	o.m.inFlight.Update(int64(len(o.pending)))
}

// Cancel tears down an in-flight challenge. It returns false if id is unknown or
// its cycle already finished.
func (o *Orchestrator) Cancel(id uuid.UUID) bool {
	o.mu.Lock()
	h, ok := o.pending[id]
	if ok {
		h.status = StatusCancelled
		o.untrackLocked(h)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}
	o.m.cancelled.Inc(1)
	o.log.Info("challenge cancelled", "id", id.String())
	h.cancel()
	return true
}

// InFlight lists challenges whose cycle has not finished.
func (o *Orchestrator) InFlight() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	return ids
}

// Running is the number of live solver execution contexts.
func (o *Orchestrator) Running() int { return int(o.running.Load()) }

// Shutdown refuses new challenges, cancels the pending ones and waits for their
// cycles to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	ids := make([]uuid.UUID, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.Cancel(id)
	}

	// Every cycle is cancelled by now, so the waiter outlives ctx only while a
	// reporter call is still in flight; await ends at most budgetGrace after its
	// budget even if the solver never returns.
	done := make(chan struct{})
	go func() { o.wg.Wait(); close(done) }()
	select {
	case <-done:
		o.log.Info("orchestrator drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
