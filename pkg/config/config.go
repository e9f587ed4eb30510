package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr    string
	HTTPAddr      string
	SolveBudget   time.Duration
	MaxCandidates uint64
	Workers       int
	LogLevel      string
	LogFormat     string
	ShutdownWait  time.Duration
	ReportURL     string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// lookup differs from getenv in that a variable set to "" wins over def.
func lookup(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func atou(s string, def uint64) uint64 {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return def
}

// Load reads .env style files into the environment (already set variables win)
// and then parses it. Missing files are ignored.
func Load(files ...string) Config {
	_ = godotenv.Load(files...)
	return Parse()
}

func Parse() Config {
	budget, _ := time.ParseDuration(getenv("POW_SOLVE_BUDGET", "60s"))
	wait, _ := time.ParseDuration(getenv("SHUTDOWN_WAIT", "5s"))
	return Config{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		HTTPAddr:      lookup("HTTP_ADDR", ":8081"),
		SolveBudget:   budget,
		MaxCandidates: atou(getenv("POW_MAX_CANDIDATES", "0"), 0),
		Workers:       atoi(getenv("POW_WORKERS", "0"), 0),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		ShutdownWait:  wait,
		ReportURL:     getenv("REPORT_URL", ""),
	}
}
