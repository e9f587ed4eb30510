package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/pow-orchestrator/pkg/logger"
)

type globals struct {
	logLevel string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "powctl",
		Short:         "issue, solve and verify proof-of-work challenges",
		Long:          `use "powctl help [<command>]" for detailed usage`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", getenv("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")

	root.AddCommand(
		newIssueCmd(),
		newSolveCmd(g),
		newRemoteCmd(g),
		newVerifyCmd(),
	)
	return root
}

// logs go to stderr so stdout stays pipeable JSON
func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	return logger.New("text", logger.LevelFromEnv(g.logLevel), cmd.ErrOrStderr())
}

// readJSON decodes v from src: "-" or "" is stdin, a leading "{" is inline JSON,
// anything else is a file path.
func readJSON(cmd *cobra.Command, src string, v any) error {
	var r io.Reader
	switch {
	case src == "" || src == "-":
		r = cmd.InOrStdin()
	case strings.HasPrefix(strings.TrimSpace(src), "{"):
		r = strings.NewReader(src)
	default:
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}
