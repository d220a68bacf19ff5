package signature

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/ports"
)

// Verifier accepts EOA signatures and, when a chain is available, signatures
// approved by ERC-1271 contract wallets.
type Verifier struct {
	eoa     EOAVerifier
	wallets *ContractWalletVerifier
}

var _ ports.SignatureVerifier = (*Verifier)(nil)

// NewVerifier creates an EOA-only verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// NewChainVerifier creates a verifier that falls back to ERC-1271.
func NewChainVerifier(wallets *ContractWalletVerifier) *Verifier {
	return &Verifier{wallets: wallets}
}

// ContractWallets reports whether ERC-1271 signatures can be validated.
func (v *Verifier) ContractWallets() bool {
	return v.wallets != nil
}

func (v *Verifier) Verify(ctx context.Context, message string, signature []byte, claimed common.Address) (bool, error) {
	ok, err := v.eoa.Verify(ctx, message, signature, claimed)
	if err != nil || ok {
		return ok, err
	}
	if v.wallets == nil {
		return false, nil
	}
	return v.wallets.Verify(ctx, message, signature, claimed)
}
