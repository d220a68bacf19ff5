package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Course is a certification category registered in the ledger
type Course struct {
	TokenID          uint64 // Ledger token id, starts at 1
	Code             string // Short unique course code, e.g. REACT-101
	Name             string // Display name
	ImageURI         string // Badge image reference
	ValidityDuration uint64 // Seconds a minted certificate stays valid
	Exists           bool   // Monotonic: once true, never false again
}

// Validity returns the validity duration as a time.Duration.
func (c Course) Validity() time.Duration {
	return time.Duration(c.ValidityDuration) * time.Second
}

// Holding is the ledger relationship between a holder and a course token
type Holding struct {
	TokenID         uint64         // Course token id
	Holder          common.Address // Wallet address
	Balance         *big.Int       // Number of certificates held, grows on re-issue
	MintTimestamp   uint64         // Unix seconds of the most recent mint, 0 if never minted
	ExpiryTimestamp uint64         // MintTimestamp + course validity, 0 if never minted
	Valid           bool           // Balance > 0 and ledger time < ExpiryTimestamp
	Course          *Course        // Course metadata, filled by portfolio lookups
}

// Held reports whether the holder has a non-zero balance.
func (h Holding) Held() bool {
	return h.Balance != nil && h.Balance.Sign() > 0
}

// ExpiryOf derives the expiry timestamp from a mint timestamp. A zero mint
// timestamp means the holder never received the certificate.
func ExpiryOf(mintTimestamp, validityDuration uint64) uint64 {
	if mintTimestamp == 0 {
		return 0
	}
	return mintTimestamp + validityDuration
}

// IsValidAt applies the validity rule at ledger time now (unix seconds).
func IsValidAt(balance *big.Int, expiryTimestamp, now uint64) bool {
	if balance == nil || balance.Sign() <= 0 {
		return false
	}
	return now < expiryTimestamp
}
