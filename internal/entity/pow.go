package entity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidChallenge = errors.New("invalid challenge")

// DifficultyMode says how Difficulty is measured against a digest.
type DifficultyMode string

const (
	// ModeBits counts leading zero bits of the raw digest.
	ModeBits DifficultyMode = "bits"
	// ModeNibbles counts leading "0" characters of the hex digest.
	ModeNibbles DifficultyMode = "nibbles"
)

const (
	AlgoSHA256  = "sha256"
	AlgoSHA3    = "sha3-256"
	AlgoBLAKE2b = "blake2b-256"
)

// MaxDifficulty is the largest meaningful difficulty for a 32-byte digest.
func (m DifficultyMode) MaxDifficulty() int {
	if m == ModeNibbles {
		return 64
	}
	return 256
}

// ChallengeParameters is handed to exactly one solver by value and never changes afterwards.
type ChallengeParameters struct {
	PuzzleSeed  string         `json:"puzzle_seed"`
	Difficulty  int            `json:"difficulty"`
	Checksum    string         `json:"checksum"`
	NoncePrefix string         `json:"nonce_prefix"`
	IssuedAt    int64          `json:"issued_at"`
	Mode        DifficultyMode `json:"mode,omitempty"`
	Algo        string         `json:"algo,omitempty"`
}

// NewChallengeParameters builds leading-zero-bit sha256 parameters and validates them.
func NewChallengeParameters(seed, checksum, prefix string, difficulty int, issuedAt int64) (ChallengeParameters, error) {
	ch := ChallengeParameters{
		PuzzleSeed:  seed,
		Difficulty:  difficulty,
		Checksum:    checksum,
		NoncePrefix: prefix,
		IssuedAt:    issuedAt,
	}.Normalize()
	if err := ch.Validate(); err != nil {
		return ChallengeParameters{}, err
	}
	return ch, nil
}

// Normalize fills the optional fields with their defaults.
func (c ChallengeParameters) Normalize() ChallengeParameters {
	if c.Mode == "" {
		c.Mode = ModeBits
	}
	if c.Algo == "" {
		c.Algo = AlgoSHA256
	}
	c.Algo = strings.ToLower(c.Algo)
	return c
}

func (c ChallengeParameters) Validate() error {
	c = c.Normalize()
	switch {
	case c.PuzzleSeed == "":
		return fmt.Errorf("%w: empty puzzle_seed", ErrInvalidChallenge)
	case !isHex(c.PuzzleSeed):
		return fmt.Errorf("%w: puzzle_seed is not hex", ErrInvalidChallenge)
	case c.Checksum == "":
		return fmt.Errorf("%w: empty checksum", ErrInvalidChallenge)
	case !isHex(c.Checksum):
		return fmt.Errorf("%w: checksum is not hex", ErrInvalidChallenge)
	case c.NoncePrefix == "":
		return fmt.Errorf("%w: empty nonce_prefix", ErrInvalidChallenge)
	case c.Difficulty < 0:
		return fmt.Errorf("%w: negative difficulty %d", ErrInvalidChallenge, c.Difficulty)
	case c.Mode != ModeBits && c.Mode != ModeNibbles:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidChallenge, c.Mode)
	case c.Difficulty > c.Mode.MaxDifficulty():
		return fmt.Errorf("%w: difficulty %d above %d", ErrInvalidChallenge, c.Difficulty, c.Mode.MaxDifficulty())
	case c.IssuedAt < 0:
		return fmt.Errorf("%w: negative issued_at", ErrInvalidChallenge)
	}
	return nil
}

// isHex accepts odd-length strings too: the issuer's salts are not always byte aligned.
func isHex(s string) bool {
	if len(s)%2 == 1 {
		s = "0" + s
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

type ResultKind int

const (
	KindNoSolution ResultKind = iota
	KindSolutionFound
)

func (k ResultKind) String() string {
	if k == KindSolutionFound {
		return "solution_found"
	}
	return "no_solution"
}

type NoSolutionReason string

const (
	ReasonBudgetExhausted NoSolutionReason = "budget_exhausted"
	ReasonSpaceExhausted  NoSolutionReason = "space_exhausted"
	ReasonCancelled       NoSolutionReason = "cancelled"
	ReasonFault           NoSolutionReason = "fault"
)

// SolveResult is the single message a solver sends back.
// Solution and Digest are set only for KindSolutionFound.
type SolveResult struct {
	Kind     ResultKind       `json:"kind"`
	Solution string           `json:"solution,omitempty"`
	Digest   string           `json:"digest,omitempty"`
	Attempts uint64           `json:"attempts"`
	Reason   NoSolutionReason `json:"reason,omitempty"`
}

func SolutionFound(solution, digest string, attempts uint64) SolveResult {
	return SolveResult{Kind: KindSolutionFound, Solution: solution, Digest: digest, Attempts: attempts}
}

func NoSolution(reason NoSolutionReason, attempts uint64) SolveResult {
	return SolveResult{Kind: KindNoSolution, Reason: reason, Attempts: attempts}
}

func (r SolveResult) Found() bool { return r.Kind == KindSolutionFound }

// ReconciledResult is what the reporter receives.
type ReconciledResult struct {
	Solution           string         `json:"solution"`
	Digest             string         `json:"digest"`
	PuzzleSeed         string         `json:"puzzle_seed"`
	Checksum           string         `json:"checksum"`
	NoncePrefix        string         `json:"nonce_prefix"`
	Difficulty         int            `json:"difficulty"`
	Mode               DifficultyMode `json:"mode"`
	Algo               string         `json:"algo"`
	CorrectedTimestamp int64          `json:"corrected_timestamp"`
	Drift              int64          `json:"drift"`
}

// Challenge rebuilds the parameters the result was solved against.
func (r ReconciledResult) Challenge() ChallengeParameters {
	return ChallengeParameters{
		PuzzleSeed:  r.PuzzleSeed,
		Difficulty:  r.Difficulty,
		Checksum:    r.Checksum,
		NoncePrefix: r.NoncePrefix,
		IssuedAt:    r.CorrectedTimestamp,
		Mode:        r.Mode,
		Algo:        r.Algo,
	}.Normalize()
}
