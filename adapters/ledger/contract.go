package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds every ledger round-trip
const DefaultTimeout = 15 * time.Second

// ContractCaller executes read-only calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractLedger reads the certification contract over JSON-RPC
type ContractLedger struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
	timeout time.Duration
	courses *CourseCache
}

var _ ports.Ledger = (*ContractLedger)(nil)

// Option configures a ContractLedger
type Option func(*ContractLedger)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *ContractLedger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithCourseCache caches course metadata and existence checks.
func WithCourseCache(c *CourseCache) Option {
	return func(l *ContractLedger) {
		l.courses = c
	}
}

// NewContractLedger creates a reader for the contract at address.
func NewContractLedger(caller ContractCaller, address common.Address, opts ...Option) *ContractLedger {
	l := &ContractLedger{
		caller:  caller,
		address: address,
		abi:     ParsedABI(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Address returns the contract address.
func (l *ContractLedger) Address() common.Address {
	return l.address
}

// Course returns metadata for tokenID.
func (l *ContractLedger) Course(ctx context.Context, tokenID uint64) (core.Course, error) {
	if tokenID == 0 {
		return core.Course{}, errors.Wrap(core.ErrInvalidArgument, "token id must be positive")
	}
	if l.courses != nil {
		return l.courses.GetOrLoad(ctx, tokenID, func(ctx context.Context) (core.Course, error) {
			return l.loadCourse(ctx, tokenID)
		})
	}
	return l.loadCourse(ctx, tokenID)
}

func (l *ContractLedger) loadCourse(ctx context.Context, tokenID uint64) (core.Course, error) {
	out, err := l.call(ctx, "getCourse", new(big.Int).SetUint64(tokenID))
	if err != nil {
		if isRevert(err) {
			return core.Course{}, errors.Wrapf(core.ErrCourseNotFound, "token %d", tokenID)
		}
		return core.Course{}, err
	}

	tuple := *abi.ConvertType(out[0], new(CourseTuple)).(*CourseTuple)
	if !tuple.Exists {
		return core.Course{}, errors.Wrapf(core.ErrCourseNotFound, "token %d", tokenID)
	}
	return core.Course{
		TokenID:          tokenID,
		Code:             tuple.CourseCode,
		Name:             tuple.CourseName,
		ImageURI:         tuple.ImageURI,
		ValidityDuration: tuple.ValidityDuration.Uint64(),
		Exists:           true,
	}, nil
}

// TotalCourses returns the number of courses created so far.
func (l *ContractLedger) TotalCourses(ctx context.Context) (uint64, error) {
	out, err := l.call(ctx, "getTotalCourses")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// BalanceOf returns how many certificates of tokenID holder has.
func (l *ContractLedger) BalanceOf(ctx context.Context, holder common.Address, tokenID uint64) (*big.Int, error) {
	if _, err := l.Course(ctx, tokenID); err != nil {
		return nil, err
	}
	out, err := l.call(ctx, "balanceOf", holder, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// MintTimestamp returns the last mint time of tokenID to holder.
func (l *ContractLedger) MintTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error) {
	return l.timestamp(ctx, "getMintTimestamp", tokenID, holder)
}

// ExpiryTimestamp returns when holder's certificate expires.
func (l *ContractLedger) ExpiryTimestamp(ctx context.Context, tokenID uint64, holder common.Address) (uint64, error) {
	return l.timestamp(ctx, "getExpiryTimestamp", tokenID, holder)
}

func (l *ContractLedger) timestamp(ctx context.Context, method string, tokenID uint64, holder common.Address) (uint64, error) {
	if _, err := l.Course(ctx, tokenID); err != nil {
		return 0, err
	}
	out, err := l.call(ctx, method, new(big.Int).SetUint64(tokenID), holder)
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// IsValid reports whether holder has a non-expired certificate, evaluated
// at the block time of the call.
func (l *ContractLedger) IsValid(ctx context.Context, tokenID uint64, holder common.Address) (bool, error) {
	if _, err := l.Course(ctx, tokenID); err != nil {
		return false, err
	}
	out, err := l.call(ctx, "isValid", new(big.Int).SetUint64(tokenID), holder)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// IsValidBatch checks all holders in a single call.
func (l *ContractLedger) IsValidBatch(ctx context.Context, tokenID uint64, holders []common.Address) ([]bool, error) {
	if len(holders) == 0 {
		return nil, errors.Wrap(core.ErrInvalidArgument, "holders must not be empty")
	}
	if _, err := l.Course(ctx, tokenID); err != nil {
		return nil, err
	}
	out, err := l.call(ctx, "isValidBatch", new(big.Int).SetUint64(tokenID), holders)
	if err != nil {
		return nil, err
	}
	results := out[0].([]bool)
	if len(results) != len(holders) {
		return nil, errors.Errorf("isValidBatch returned %d results for %d holders", len(results), len(holders))
	}
	return results, nil
}

// call packs, executes and unpacks a view call bounded by the ledger timeout.
func (l *ContractLedger) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	input, err := l.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(core.ErrInvalidArgument, "pack %s: %v", method, err)
	}

	data, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &l.address, Data: input}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, &revertError{method: method, err: err}
		}
		return nil, errors.Wrapf(core.ErrLedgerUnavailable, "%s: %v", method, err)
	}

	out, err := l.abi.Unpack(method, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", method)
	}
	return out, nil
}

// revertError is a call the contract rejected, as opposed to a transport failure
type revertError struct {
	method string
	err    error
}

func (e *revertError) Error() string {
	return e.method + " reverted: " + e.err.Error()
}

func (e *revertError) Unwrap() error {
	return e.err
}

func isRevert(err error) bool {
	var re *revertError
	if errors.As(err, &re) {
		return true
	}
	var de rpc.DataError
	return errors.As(err, &de)
}
