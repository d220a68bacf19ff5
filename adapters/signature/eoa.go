package signature

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
)

// EOAVerifier checks personal_sign signatures made by externally owned accounts
type EOAVerifier struct{}

var _ ports.SignatureVerifier = EOAVerifier{}

// Verify recovers the signer of message and compares it with claimed.
// Signatures that cannot be recovered are reported as false.
func (EOAVerifier) Verify(_ context.Context, message string, signature []byte, claimed common.Address) (bool, error) {
	signer, err := eth.RecoverAddress([]byte(message), signature)
	if err != nil {
		return false, nil
	}
	return signer == claimed, nil
}
