package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

var (
	ErrUnknownAlgo = errors.New("unknown algo")
	ErrPowInvalid  = errors.New("pow invalid")
)

// Hasher is the opaque hash capability behind the predicate.
type Hasher func(data []byte) [32]byte

var hashers = map[string]Hasher{
	entity.AlgoSHA256:  sha256.Sum256,
	entity.AlgoSHA3:    sha3.Sum256,
	entity.AlgoBLAKE2b: blake2b.Sum256,
}

func HasherFor(algo string) (Hasher, error) {
	if algo == "" {
		algo = entity.AlgoSHA256
	}
	h, ok := hashers[strings.ToLower(algo)]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAlgo, algo)
	}
	return h, nil
}

// ValidateChallenge is entity validation plus a check that the algo can be hashed here.
func ValidateChallenge(ch entity.ChallengeParameters) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	if _, err := HasherFor(ch.Algo); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrInvalidChallenge, err)
	}
	return nil
}

func leadingZeroBits(b []byte) int {
	total := 0
	for _, by := range b {
		if by == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(by)
		break
	}
	return total
}

func leadingZeroNibbles(b []byte) int {
	total := 0
	for _, by := range b {
		if by == 0 {
			total += 2
			continue
		}
		if by < 0x10 {
			total++
		}
		break
	}
	return total
}

// Satisfies reports whether digest meets difficulty under mode.
func Satisfies(digest []byte, difficulty int, mode entity.DifficultyMode) bool {
	if difficulty <= 0 {
		return true
	}
	if mode == entity.ModeNibbles {
		return leadingZeroNibbles(digest) >= difficulty
	}
	return leadingZeroBits(digest) >= difficulty
}

// powBase is puzzle_seed || checksum || nonce_prefix; candidates are appended to it.
func powBase(ch entity.ChallengeParameters) []byte {
	base := make([]byte, 0, len(ch.PuzzleSeed)+len(ch.Checksum)+len(ch.NoncePrefix)+20)
	base = append(base, ch.PuzzleSeed...)
	base = append(base, ch.Checksum...)
	base = append(base, ch.NoncePrefix...)
	return base
}

func Digest(ch entity.ChallengeParameters, candidate string) ([32]byte, error) {
	h, err := HasherFor(ch.Algo)
	if err != nil {
		return [32]byte{}, err
	}
	return h(append(powBase(ch), candidate...)), nil
}

// Check recomputes the digest for solution and tests the difficulty predicate.
func Check(ch entity.ChallengeParameters, solution string) (string, error) {
	ch = ch.Normalize()
	sum, err := Digest(ch, solution)
	if err != nil {
		return "", err
	}
	if !Satisfies(sum[:], ch.Difficulty, ch.Mode) {
		return "", ErrPowInvalid
	}
	return hex.EncodeToString(sum[:]), nil
}
