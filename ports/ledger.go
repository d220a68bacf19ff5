package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/certify/core"
)

// Ledger is read-only access to the certification contract.
//
// Per-holder queries return core.ErrCourseNotFound when the token id is
// unknown and core.ErrLedgerUnavailable on network failures or timeouts.
type Ledger interface {
	Course(ctx context.Context, tokenID uint64) (core.Course, error)
	TotalCourses(ctx context.Context) (uint64, error)

	BalanceOf(ctx context.Context, holder common.Address, tokenID uint64) (*big.Int, error)
	MintTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error)
	ExpiryTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error)
	IsValid(ctx context.Context, tokenID uint64, holder common.Address) (bool, error)

	// IsValidBatch answers IsValid for every holder in one round-trip,
	// preserving input order. Empty input is core.ErrInvalidArgument.
	IsValidBatch(ctx context.Context, tokenID uint64, holders []common.Address) ([]bool, error)
}
