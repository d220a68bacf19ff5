package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ChallengeDisclaimer is the fixed sentence stating the signature's only purpose.
const ChallengeDisclaimer = "This signature will only be used to verify your ownership of this certificate."

var (
	challengeSubjectRe   = regexp.MustCompile(`(?m)^Prove ownership of certificate #(\d+) at contract (0[xX][0-9a-fA-F]{40})$`)
	challengeTimestampRe = regexp.MustCompile(`(?m)^Timestamp: (\d+)$`)
)

// Challenge is the data embedded in an ownership challenge message
type Challenge struct {
	TokenID  uint64    // Certificate token id the signature is bound to
	Contract string    // Verifier contract address, as supplied by the caller
	IssuedAt time.Time // Creation time, millisecond precision
}

// Text renders the human-readable message a wallet signs.
func (c Challenge) Text() string {
	return fmt.Sprintf("Prove ownership of certificate #%d at contract %s\n\nTimestamp: %d\n\n%s",
		c.TokenID, c.Contract, c.IssuedAt.UnixMilli(), ChallengeDisclaimer)
}

// BoundTo reports whether the challenge covers tokenID at contract.
func (c Challenge) BoundTo(tokenID uint64, contract string) bool {
	return c.TokenID == tokenID && strings.EqualFold(c.Contract, contract)
}

// ParseChallenge extracts token id, contract and timestamp from a message
// produced by Challenge.Text.
func ParseChallenge(text string) (Challenge, error) {
	subject := challengeSubjectRe.FindStringSubmatch(text)
	if subject == nil {
		return Challenge{}, errors.Wrap(ErrInvalidArgument, "message is not an ownership challenge")
	}
	ts := challengeTimestampRe.FindStringSubmatch(text)
	if ts == nil {
		return Challenge{}, errors.Wrap(ErrInvalidArgument, "challenge has no timestamp")
	}

	tokenID, err := strconv.ParseUint(subject[1], 10, 64)
	if err != nil || tokenID == 0 {
		return Challenge{}, errors.Wrapf(ErrInvalidArgument, "challenge token id %q", subject[1])
	}
	millis, err := strconv.ParseInt(ts[1], 10, 64)
	if err != nil {
		return Challenge{}, errors.Wrapf(ErrInvalidArgument, "challenge timestamp %q", ts[1])
	}

	return Challenge{
		TokenID:  tokenID,
		Contract: subject[2],
		IssuedAt: time.UnixMilli(millis),
	}, nil
}
