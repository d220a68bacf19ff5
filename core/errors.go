package core

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrCourseNotFound    = errors.New("course does not exist")
	ErrNotOwner          = errors.New("holder does not own this certificate")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrChallengeReused   = errors.New("challenge already used")
	ErrInvalidProof      = errors.New("invalid proof token")
	ErrSigningCanceled   = errors.New("signing canceled")
)

var sentinels = map[error]bool{
	ErrInvalidArgument:   true,
	ErrInvalidSignature:  true,
	ErrCourseNotFound:    true,
	ErrNotOwner:          true,
	ErrLedgerUnavailable: true,
	ErrChallengeExpired:  true,
	ErrChallengeReused:   true,
	ErrInvalidProof:      true,
	ErrSigningCanceled:   true,
}

// IsRetryable reports whether the whole verification flow may be retried
// after err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}

// Detail renders err for users without the trailing sentinel text of this
// package, so "token id must be positive: invalid argument" reads
// "token id must be positive". Other causes are kept.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	cause := errors.Cause(err)
	if cause == err || !sentinels[cause] {
		return msg
	}
	if trimmed := strings.TrimSuffix(msg, ": "+cause.Error()); trimmed != "" {
		return trimmed
	}
	return msg
}
