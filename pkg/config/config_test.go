package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// unsetenv снимает переменную на время теста и возвращает её после.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

var allKeys = []string{
	"LISTEN_ADDR", "HTTP_ADDR", "POW_SOLVE_BUDGET", "POW_MAX_CANDIDATES", "POW_WORKERS",
	"LOG_LEVEL", "LOG_FORMAT", "SHUTDOWN_WAIT", "REPORT_URL",
}

func TestParse_Defaults_WhenEnvMissing(t *testing.T) {
	unsetenv(t, allKeys...)

	cfg := Parse()

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr=%q; want :8080", cfg.ListenAddr)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("HTTPAddr=%q; want :8081", cfg.HTTPAddr)
	}
	// при пустом POW_SOLVE_BUDGET используется дефолт "60s"
	if cfg.SolveBudget != 60*time.Second {
		t.Fatalf("SolveBudget=%v; want 60s", cfg.SolveBudget)
	}
	if cfg.MaxCandidates != 0 || cfg.Workers != 0 {
		t.Fatalf("MaxCandidates=%d Workers=%d; want 0/0", cfg.MaxCandidates, cfg.Workers)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("LogLevel=%q LogFormat=%q; want info/json", cfg.LogLevel, cfg.LogFormat)
	}
	// дефолт SHUTDOWN_WAIT = 5s
	if cfg.ShutdownWait != 5*time.Second {
		t.Fatalf("ShutdownWait=%v; want 5s", cfg.ShutdownWait)
	}
	if cfg.ReportURL != "" {
		t.Fatalf("ReportURL=%q; want empty", cfg.ReportURL)
	}
}

func TestParse_ValidValues(t *testing.T) {
	t.Setenv("POW_SOLVE_BUDGET", "90s")
	t.Setenv("SHUTDOWN_WAIT", "1500ms")
	t.Setenv("POW_MAX_CANDIDATES", "1000000")
	t.Setenv("POW_WORKERS", "3")
	t.Setenv("REPORT_URL", "http://collector.local/submit")

	cfg := Parse()

	if cfg.SolveBudget != 90*time.Second {
		t.Fatalf("SolveBudget=%v; want 90s", cfg.SolveBudget)
	}
	if cfg.ShutdownWait != 1500*time.Millisecond {
		t.Fatalf("ShutdownWait=%v; want 1500ms", cfg.ShutdownWait)
	}
	if cfg.MaxCandidates != 1000000 || cfg.Workers != 3 {
		t.Fatalf("MaxCandidates=%d Workers=%d; want 1000000/3", cfg.MaxCandidates, cfg.Workers)
	}
	if cfg.ReportURL != "http://collector.local/submit" {
		t.Fatalf("ReportURL=%q", cfg.ReportURL)
	}
}

func TestParse_EmptyHTTPAddrDisables(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")

	if cfg := Parse(); cfg.HTTPAddr != "" {
		t.Fatalf("HTTPAddr=%q; want empty", cfg.HTTPAddr)
	}
}

func TestParse_InvalidValues_CurrentBehavior(t *testing.T) {
	// Невалидные строки: ParseDuration ошибки игнорит -> ноль.
	t.Setenv("POW_SOLVE_BUDGET", "oops")
	t.Setenv("SHUTDOWN_WAIT", "nope")
	// Невалидные числа -> дефолт 0
	t.Setenv("POW_MAX_CANDIDATES", "-5")
	t.Setenv("POW_WORKERS", "abc")

	cfg := Parse()

	if cfg.SolveBudget != 0 {
		t.Fatalf("SolveBudget=%v; want 0 (текущее поведение при невалидном значении)", cfg.SolveBudget)
	}
	if cfg.ShutdownWait != 0 {
		t.Fatalf("ShutdownWait=%v; want 0 (текущее поведение при невалидном значении)", cfg.ShutdownWait)
	}
	if cfg.MaxCandidates != 0 || cfg.Workers != 0 {
		t.Fatalf("MaxCandidates=%d Workers=%d; want 0/0", cfg.MaxCandidates, cfg.Workers)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	unsetenv(t, "POW_WORKERS", "LOG_FORMAT")
	t.Setenv("LISTEN_ADDR", ":9999")

	path := filepath.Join(t.TempDir(), ".env")
	content := "POW_WORKERS=6\nLOG_FORMAT=text\nLISTEN_ADDR=:7777\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg := Load(path)

	if cfg.Workers != 6 || cfg.LogFormat != "text" {
		t.Fatalf("Workers=%d LogFormat=%q; want values from .env", cfg.Workers, cfg.LogFormat)
	}
	// переменная окружения главнее .env
	if cfg.ListenAddr != ":9999" {
		t.Fatalf("ListenAddr=%q; want :9999", cfg.ListenAddr)
	}
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	unsetenv(t, "LISTEN_ADDR")

	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr=%q; want :8080", cfg.ListenAddr)
	}
}
