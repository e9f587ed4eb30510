package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

func newVerifyCmd() *cobra.Command {
	var (
		input     string
		tolerance time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check a reconciled result against its challenge",
		Long: `For example:
			powctl solve -c challenge.json | powctl verify --tolerance 2m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res entity.ReconciledResult
			if err := readJSON(cmd, input, &res); err != nil {
				return err
			}
			if err := service.NewIssuer().Verify(res, tolerance); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "result", "r", "-", "result JSON: inline, file path, or - for stdin")
	cmd.Flags().DurationVar(&tolerance, "tolerance", 0, "max age of corrected_timestamp (0 = skip)")
	return cmd
}
