package service

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

func TestNewChallenge_BasicFields(t *testing.T) {
	t.Parallel()

	now := time.Unix(1758726615, 0)
	iss := NewIssuerWithClock(func() time.Time { return now })

	ch, err := iss.NewChallenge(10, entity.ModeBits, "")
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}

	if ch.Difficulty != 10 || ch.Mode != entity.ModeBits || ch.Algo != entity.AlgoSHA256 {
		t.Fatalf("unexpected difficulty/mode/algo: %d/%s/%s", ch.Difficulty, ch.Mode, ch.Algo)
	}
	if ch.IssuedAt != now.Unix() {
		t.Fatalf("issued_at = %d; want %d", ch.IssuedAt, now.Unix())
	}
	if b, err := hex.DecodeString(ch.PuzzleSeed); err != nil || len(b) != seedLen {
		t.Fatalf("puzzle_seed %q is not %d hex bytes", ch.PuzzleSeed, seedLen)
	}
	if _, err := hex.DecodeString(ch.Checksum); err != nil {
		t.Fatalf("checksum not hex: %v", err)
	}
	if len(ch.NoncePrefix) != prefixLen {
		t.Fatalf("nonce_prefix length = %d; want %d", len(ch.NoncePrefix), prefixLen)
	}
	for _, r := range ch.NoncePrefix {
		if !strings.ContainsRune(prefixCharset, r) {
			t.Fatalf("nonce_prefix %q has rune %q outside charset", ch.NoncePrefix, r)
		}
	}

	other, err := iss.NewChallenge(10, entity.ModeBits, "")
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	if other.NoncePrefix == ch.NoncePrefix || other.PuzzleSeed == ch.PuzzleSeed {
		t.Fatal("two challenges share random material")
	}
}

func TestNewChallenge_RejectsBadInput(t *testing.T) {
	t.Parallel()

	iss := NewIssuer()
	if _, err := iss.NewChallenge(-1, entity.ModeBits, ""); err == nil {
		t.Fatal("negative difficulty accepted")
	}
	if _, err := iss.NewChallenge(1, entity.ModeBits, "md5"); err == nil {
		t.Fatal("unknown algo accepted")
	}
	if _, err := iss.NewChallenge(65, entity.ModeNibbles, ""); err == nil {
		t.Fatal("nibble difficulty above 64 accepted")
	}
}

func TestVerify_Table(t *testing.T) {
	t.Parallel()

	now := time.Unix(1758726615, 0)
	iss := NewIssuerWithClock(func() time.Time { return now })

	ch, err := iss.NewChallenge(8, entity.ModeBits, entity.AlgoBLAKE2b)
	if err != nil {
		t.Fatalf("NewChallenge() error: %v", err)
	}
	res := NewSolver(loggerSilent(), WithWorkers(2)).Solve(context.Background(), ch)
	if !res.Found() {
		t.Fatalf("solver found nothing at difficulty 8")
	}
	base := entity.ReconciledResult{
		Solution:           res.Solution,
		Digest:             res.Digest,
		PuzzleSeed:         ch.PuzzleSeed,
		Checksum:           ch.Checksum,
		NoncePrefix:        ch.NoncePrefix,
		Difficulty:         ch.Difficulty,
		Mode:               ch.Mode,
		Algo:               ch.Algo,
		CorrectedTimestamp: ch.IssuedAt,
	}

	cases := []struct {
		name      string
		res       entity.ReconciledResult
		tolerance time.Duration
		wantErr   string
	}{
		{"ok", base, time.Minute, ""},
		{"ok_no_age_check", func() entity.ReconciledResult { r := base; r.CorrectedTimestamp = 1; return r }(), 0, ""},
		{"wrong_solution", func() entity.ReconciledResult { r := base; r.Solution = "not-it"; r.Difficulty = 40; return r }(), time.Minute, "pow invalid"},
		{"digest_mismatch", func() entity.ReconciledResult { r := base; r.Digest = "00"; return r }(), time.Minute, "digest mismatch"},
		{"stale_timestamp", func() entity.ReconciledResult { r := base; r.CorrectedTimestamp -= 3600; return r }(), time.Minute, "timestamp drift"},
		{"future_timestamp", func() entity.ReconciledResult { r := base; r.CorrectedTimestamp += 3600; return r }(), time.Minute, "timestamp drift"},
		{"bad_seed", func() entity.ReconciledResult { r := base; r.PuzzleSeed = ""; return r }(), time.Minute, "invalid challenge"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := iss.Verify(tc.res, tc.tolerance)
			if tc.wantErr == "" && err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if tc.wantErr != "" {
				if err == nil {
					t.Fatalf("Verify() expected error containing %q, got nil", tc.wantErr)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Verify() error %q; want contains %q", err.Error(), tc.wantErr)
				}
			}
		})
	}
}
