package core

import "github.com/pkg/errors"

// State is a step of a single ownership verification
type State string

const (
	StateIdle      State = "idle"
	StateVerifying State = "verifying"
	StateVerified  State = "verified"
	StateFailed    State = "failed"
)

// Reason classifies a failed verification
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidArgument  Reason = "invalid_argument"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonChallengeExpired Reason = "challenge_expired"
	ReasonChallengeReused  Reason = "challenge_reused"
	ReasonCourseNotFound   Reason = "course_not_found"
	ReasonNotOwner         Reason = "not_owner"
	ReasonNetworkError     Reason = "network_error"
	ReasonCanceled         Reason = "canceled"
	ReasonUnknown          Reason = "unknown"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidSignature: "Invalid signature",
	ReasonChallengeExpired: "Challenge expired",
	ReasonChallengeReused:  "Challenge already used",
	ReasonCourseNotFound:   "Course does not exist",
	ReasonNotOwner:         "You don't own this certificate",
	ReasonNetworkError:     "Network error. Please try again.",
	ReasonCanceled:         "Signing canceled",
}

// Verdict is the outcome of one ownership verification
type Verdict struct {
	State   State  `json:"state"`             // Terminal state, or StateIdle when signing was canceled
	Address string `json:"address,omitempty"` // Verified address in checksum form, set on success
	TokenID uint64 `json:"tokenId"`           // Certificate token id that was checked
	Reason  Reason `json:"reason,omitempty"`  // Failure classification
	Message string `json:"message,omitempty"` // User-visible failure text
	Proof   string `json:"proof,omitempty"`   // Shareable proof token, set on success when proofs are enabled
}

// Success reports whether ownership was verified.
func (v Verdict) Success() bool {
	return v.State == StateVerified
}

// Verified builds a successful verdict.
func Verified(address string, tokenID uint64) Verdict {
	return Verdict{State: StateVerified, Address: address, TokenID: tokenID}
}

// Failed builds a failed verdict. The message is the fixed text for the
// reason, or the underlying failure message when the reason has none.
func Failed(reason Reason, tokenID uint64, cause error) Verdict {
	msg, ok := reasonMessages[reason]
	if !ok {
		msg = "Failed to verify ownership"
		if cause != nil {
			msg = Detail(cause)
		}
	}
	return Verdict{State: StateFailed, TokenID: tokenID, Reason: reason, Message: msg}
}

// Canceled builds the verdict for a flow abandoned while waiting for a signature.
func Canceled(tokenID uint64) Verdict {
	return Verdict{State: StateIdle, TokenID: tokenID, Reason: ReasonCanceled, Message: reasonMessages[ReasonCanceled]}
}

// ReasonFor maps an error from the ledger or verifier to a failure reason.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInvalidArgument):
		return ReasonInvalidArgument
	case errors.Is(err, ErrInvalidSignature):
		return ReasonInvalidSignature
	case errors.Is(err, ErrChallengeExpired):
		return ReasonChallengeExpired
	case errors.Is(err, ErrChallengeReused):
		return ReasonChallengeReused
	case errors.Is(err, ErrCourseNotFound):
		return ReasonCourseNotFound
	case errors.Is(err, ErrNotOwner):
		return ReasonNotOwner
	case errors.Is(err, ErrLedgerUnavailable):
		return ReasonNetworkError
	case errors.Is(err, ErrSigningCanceled):
		return ReasonCanceled
	default:
		return ReasonUnknown
	}
}
