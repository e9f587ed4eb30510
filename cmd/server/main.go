package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rcrowley/go-metrics"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/adapter/report"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/adapter/transport/httpapi"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/adapter/transport/tcp"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/app"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
	"github.com/dayanaadylkhanova/pow-orchestrator/pkg/config"
	"github.com/dayanaadylkhanova/pow-orchestrator/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.LogFormat, logger.LevelFromEnv(cfg.LogLevel), os.Stdout)
	gin.SetMode(gin.ReleaseMode)

	registry := metrics.NewRegistry()
	solver := service.NewSolver(log,
		service.WithWorkers(cfg.Workers),
		service.WithMaxCandidates(cfg.MaxCandidates),
		service.WithHashrate(metrics.GetOrRegisterMeter("solver.hashrate", registry)),
	)

	reporters := report.Multi{report.NewLog(log)}
	if cfg.ReportURL != "" {
		reporters = append(reporters, report.NewWebhook(cfg.ReportURL, 0))
	}

	orch := service.NewOrchestrator(log, solver, reporters,
		service.WithBudget(cfg.SolveBudget),
		service.WithRegistry(registry),
	)

	// A TCP connection may stay open for the whole solve budget plus reporting.
	connTTL := cfg.SolveBudget + cfg.ShutdownWait
	if connTTL <= cfg.ShutdownWait {
		connTTL = service.DefaultSolveBudget + cfg.ShutdownWait
	}
	runners := []app.Runner{tcp.NewServer(log, cfg.ListenAddr, connTTL, cfg.ShutdownWait, orch)}
	if cfg.HTTPAddr != "" {
		runners = append(runners, httpapi.NewServer(log, cfg.HTTPAddr, cfg.ShutdownWait, orch))
	}

	log.Info("orchestrator configured",
		"workers", solver.Workers(),
		"budget", cfg.SolveBudget.String(),
		"max_candidates", cfg.MaxCandidates,
		"webhook", cfg.ReportURL != "",
	)

	if err := app.New(log, orch, cfg.ShutdownWait, runners...).Run(); err != nil {
		log.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}
