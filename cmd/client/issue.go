package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

func newIssueCmd() *cobra.Command {
	var (
		difficulty int
		mode       string
		algo       string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "generate a fresh challenge and print it as one JSON line",
		Long: `For example:
			powctl issue --difficulty 20 | powctl solve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := service.NewIssuer().NewChallenge(difficulty, entity.DifficultyMode(mode), algo)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(ch)
		},
	}
	cmd.Flags().IntVarP(&difficulty, "difficulty", "d", 20, "required leading zeros")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(entity.ModeBits), "difficulty unit: bits or nibbles")
	cmd.Flags().StringVarP(&algo, "algo", "a", entity.AlgoSHA256, "hash: sha256, sha3-256 or blake2b-256")
	return cmd
}
