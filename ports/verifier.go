package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// SignatureVerifier checks that claimed produced signature over message.
// Malformed or mismatching signatures are reported as false, not errors.
type SignatureVerifier interface {
	Verify(ctx context.Context, message string, signature []byte, claimed common.Address) (bool, error)
}

// Signer obtains a wallet signature over a challenge. It may block on user
// interaction and must return when ctx is canceled.
type Signer interface {
	SignMessage(ctx context.Context, message string) ([]byte, error)
}
