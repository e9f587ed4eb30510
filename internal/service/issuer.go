package service

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

var ErrTimestampDrift = errors.New("timestamp drift exceeds tolerance")

const (
	prefixCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	prefixLen     = 16
	seedLen       = 32
)

// Issuer plays the external challenge issuer and verifier. The orchestrator never
// depends on it; the CLI and tests do.
type Issuer struct {
	now func() time.Time
}

func NewIssuer() *Issuer { return &Issuer{now: time.Now} }

// NewIssuerWithClock доп. конструктор для тестов
func NewIssuerWithClock(now func() time.Time) *Issuer { return &Issuer{now: now} }

func (i *Issuer) NewChallenge(difficulty int, mode entity.DifficultyMode, algo string) (entity.ChallengeParameters, error) {
	seed := make([]byte, seedLen)
	if _, err := crand.Read(seed); err != nil {
		return entity.ChallengeParameters{}, fmt.Errorf("seed: %w", err)
	}
	sum := make([]byte, seedLen)
	if _, err := crand.Read(sum); err != nil {
		return entity.ChallengeParameters{}, fmt.Errorf("checksum: %w", err)
	}
	prefix, err := randomPrefix()
	if err != nil {
		return entity.ChallengeParameters{}, fmt.Errorf("nonce prefix: %w", err)
	}

	ch := entity.ChallengeParameters{
		PuzzleSeed:  hex.EncodeToString(seed),
		Difficulty:  difficulty,
		Checksum:    hex.EncodeToString(sum),
		NoncePrefix: prefix,
		IssuedAt:    i.now().Unix(),
		Mode:        mode,
		Algo:        algo,
	}.Normalize()
	if err := ValidateChallenge(ch); err != nil {
		return entity.ChallengeParameters{}, err
	}
	return ch, nil
}

func randomPrefix() (string, error) {
	b := make([]byte, prefixLen)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	for k := range b {
		b[k] = prefixCharset[int(b[k])%len(prefixCharset)]
	}
	return string(b), nil
}

// Verify checks the predicate for res and that its timestamp is no older than
// tolerance. A zero tolerance skips the age check.
func (i *Issuer) Verify(res entity.ReconciledResult, tolerance time.Duration) error {
	ch := res.Challenge()
	if err := ValidateChallenge(ch); err != nil {
		return err
	}
	digest, err := Check(ch, res.Solution)
	if err != nil {
		return err
	}
	if res.Digest != "" && res.Digest != digest {
		return fmt.Errorf("%w: digest mismatch", ErrPowInvalid)
	}
	if tolerance > 0 {
		age := i.now().Unix() - res.CorrectedTimestamp
		if age > int64(tolerance.Seconds()) || age < -int64(tolerance.Seconds()) {
			return fmt.Errorf("%w: %ds", ErrTimestampDrift, age)
		}
	}
	return nil
}
