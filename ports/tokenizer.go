package ports

import "time"

// ProofClaims is the content of a shareable ownership proof
type ProofClaims struct {
	ID        string    // Unique proof id
	Address   string    // Verified holder address
	TokenID   uint64    // Certificate token id
	Contract  string    // Certification contract address
	IssuedAt  time.Time // When ownership was verified
	ExpiresAt time.Time // When the proof stops being accepted
}

// ProofTokenizer converts between proofs and signed tokens
type ProofTokenizer interface {
	ProofToToken(claims *ProofClaims) (string, error)
	TokenToProof(token string) (*ProofClaims, error)
}
