package tokenizer

import "github.com/golang-jwt/jwt/v5"

// ProofClaims combines standard claims with certificate-specific ones.
// Subject is the verified holder address.
type ProofClaims struct {
	jwt.RegisteredClaims
	TokenID  uint64 `json:"tid"`
	Contract string `json:"contract"`
}
