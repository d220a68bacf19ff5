package service

import (
	"time"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/pkg/errors"
)

// ChallengeGenerator builds ownership challenge messages
type ChallengeGenerator struct {
	now func() time.Time
}

// NewChallengeGenerator creates a generator. A nil clock means time.Now.
func NewChallengeGenerator(now func() time.Time) *ChallengeGenerator {
	if now == nil {
		now = time.Now
	}
	return &ChallengeGenerator{now: now}
}

// Generate returns the message binding tokenID and contract to the current
// time. The contract is embedded exactly as given.
func (g *ChallengeGenerator) Generate(tokenID uint64, contract string) (string, error) {
	if tokenID == 0 {
		return "", errors.Wrap(core.ErrInvalidArgument, "token id must be positive")
	}
	if _, err := eth.ParseAddress(contract); err != nil {
		return "", err
	}

	c := core.Challenge{
		TokenID:  tokenID,
		Contract: contract,
		IssuedAt: g.now(),
	}
	return c.Text(), nil
}
