package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

func newRemoteCmd(g *globals) *cobra.Command {
	var (
		input   string
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "hand a challenge to a running server over TCP and wait for the outcome",
		Long: `Ctrl-C sends "cancel" to the server. For example:
			powctl issue -d 22 | powctl remote --addr localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ch entity.ChallengeParameters
			if err := readJSON(cmd, input, &ch); err != nil {
				return err
			}
			log := g.logger(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := (&net.Dialer{Timeout: 10 * time.Second}).DialContext(ctx, "tcp", addr)
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(timeout))

			br := bufio.NewReader(conn)
			bw := bufio.NewWriter(conn)

			// 1) challenge
			payload, err := json.Marshal(ch)
			if err != nil {
				return err
			}
			if _, err := bw.Write(append(payload, '\n')); err != nil {
				return fmt.Errorf("write challenge: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("flush: %w", err)
			}

			// 2) ack
			ack, err := readReply(br)
			if err != nil {
				return err
			}
			log.Info("challenge issued", "id", ack.ID, "server", addr)

			finished := make(chan struct{})
			defer close(finished)
			go func() {
				select {
				case <-ctx.Done():
					log.Info("cancelling", "id", ack.ID)
					_, _ = conn.Write([]byte("cancel\n"))
				case <-finished:
				}
			}()

			// 3) outcome
			fin, err := readReply(br)
			if err != nil {
				return err
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(fin); err != nil {
				return err
			}
			if fin.Status != "reported" {
				return fmt.Errorf("challenge %s ended %s", fin.ID, fin.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "challenge", "c", "-", "challenge JSON: inline, file path, or - for stdin")
	cmd.Flags().StringVar(&addr, "addr", getenv("SERVER_ADDR", "localhost:8080"), "server TCP address")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "connection deadline")
	return cmd
}

// readReply decodes one reply line; the server answers errors as plain text.
func readReply(br *bufio.Reader) (entity.Reply, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return entity.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	line = strings.TrimSpace(line)
	var r entity.Reply
	if err := json.Unmarshal([]byte(line), &r); err != nil {
		return entity.Reply{}, errors.New(line)
	}
	return r, nil
}
