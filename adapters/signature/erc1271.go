package signature

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/certify/adapters/ledger"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

// ChainReader is the subset of *ethclient.Client needed for ERC-1271 checks
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractWalletVerifier asks smart-contract wallets whether they approve a
// signature via isValidSignature(bytes32,bytes).
type ContractWalletVerifier struct {
	chain   ChainReader
	abi     abi.ABI
	timeout time.Duration
}

var _ ports.SignatureVerifier = (*ContractWalletVerifier)(nil)

// NewContractWalletVerifier creates a verifier. A non-positive timeout
// falls back to ledger.DefaultTimeout.
func NewContractWalletVerifier(chain ChainReader, timeout time.Duration) *ContractWalletVerifier {
	if timeout <= 0 {
		timeout = ledger.DefaultTimeout
	}
	return &ContractWalletVerifier{chain: chain, abi: ledger.ParsedABI(), timeout: timeout}
}

// Verify returns false for accounts without code. Transport failures are
// core.ErrLedgerUnavailable.
func (v *ContractWalletVerifier) Verify(ctx context.Context, message string, signature []byte, claimed common.Address) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	code, err := v.chain.CodeAt(ctx, claimed, nil)
	if err != nil {
		return false, errors.Wrapf(core.ErrLedgerUnavailable, "code at %s: %v", claimed.Hex(), err)
	}
	if len(code) == 0 {
		return false, nil
	}

	var hash [32]byte
	copy(hash[:], eth.TextHash([]byte(message)))
	input, err := v.abi.Pack("isValidSignature", hash, signature)
	if err != nil {
		return false, nil
	}

	data, err := v.chain.CallContract(ctx, ethereum.CallMsg{To: &claimed, Data: input}, nil)
	if err != nil {
		var de rpc.DataError
		if errors.As(err, &de) {
			return false, nil
		}
		return false, errors.Wrapf(core.ErrLedgerUnavailable, "isValidSignature: %v", err)
	}

	out, err := v.abi.Unpack("isValidSignature", data)
	if err != nil {
		// wallets without ERC-1271 return nothing or garbage
		return false, nil
	}
	magic, ok := out[0].([4]byte)
	return ok && magic == ledger.ERC1271MagicValue, nil
}
